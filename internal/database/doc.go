/*
包 database 提供反馈数据库的连接池管理，支持健康检查与统计信息采集。

# 概述

本包通过 PoolManager 封装 GORM 与 database/sql 的连接池配置，
统一管理反馈日志数据库的连接生命周期、空闲回收与最大连接数限制。
后台健康检查定时探活，异常时通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。

# 主要能力

  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 精细控制。
  - sqlite 预设：SQLitePoolConfig 将连接数限制为单连接，
    避免本地文件并发写入时的 database is locked 错误。
  - 健康检查：后台定时 PingContext 探活，输出连接数与空闲数。
*/
package database
