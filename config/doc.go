// Package config 提供咨询服务的配置管理功能。
//
// 支持从 YAML 文件与环境变量加载配置，内置专家表与
// 领域关键词路由表的覆盖机制，以及配置文件变更监听。
package config
