/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、专家调用、咨询、缓存与反馈五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 专家调用指标：调用总数与耗时，按 expert/domain/status 分组，
    status 区分 success/error/timeout。
  - 咨询指标：咨询总数（按来源区分缓存命中与真实调度）、
    端到端耗时、专家组规模与共识得分分布。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 反馈指标：各类反馈写入计数。
*/
package metrics
