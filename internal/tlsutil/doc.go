// Package tlsutil 集中提供出站连接的 TLS 配置，LLM 客户端与 Redis 连接共用。
package tlsutil
