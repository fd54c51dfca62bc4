// Copyright (c) Consult Authors.
// Licensed under the MIT License.

/*
Package main 提供 consult 服务端与 CLI 程序入口。

# 概述

cmd/consult 是多专家咨询引擎的可执行入口，提供 HTTP API 服务、
本地 CLI 咨询、反馈记录、健康检查和版本查询等子命令。程序支持
YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集以及
专家表热替换。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - cliEnv            — CLI 命令共享的本地环境（配置 + 反馈存储）

# 主要能力

  - 子命令：serve（启动服务）、ask（本地咨询）、experts、feedback、
    stats、recent、patterns、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter（基于 IP）
  - 专家表热替换：FileWatcher 监听配置文件变更并重建注册表
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止监视器 → 关闭 HTTP → 关闭 Metrics →
    关闭遥测 → 关闭缓存
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
