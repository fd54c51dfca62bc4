// Copyright (c) Consult Authors.
// Licensed under the MIT License.

/*
Package handlers 提供咨询服务 HTTP API 的请求处理器实现。

# 概述

handlers 包实现了咨询服务所有 HTTP 端点的请求处理逻辑，
包括专家面板咨询、单专家咨询、专家表查询、反馈评分
以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - ConsultHandler   — 咨询处理器：面板扇出、单专家调用、专家/领域列表
  - FeedbackHandler  — 反馈处理器：评分写入、统计、近期记录、模式分析
  - HealthHandler    — 服务健康检查（/health, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（数据库、Redis、Ollama 端点）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（严格模式，拒绝未知字段）
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 未知专家 id 在任何调用发生前以 400/404 拒绝整个请求
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
