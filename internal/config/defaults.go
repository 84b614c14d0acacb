package config

import (
	"time"

	"github.com/spf13/viper"
)

// 默认值仅在这里出现，核心包通过构造参数接收
const (
	DefaultAPIURL      = "http://localhost:2024"
	DefaultAssistantID = "agent"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Server 配置
	viper.SetDefault("server.api_url", DefaultAPIURL)
	viper.SetDefault("server.assistant_id", DefaultAssistantID)
	viper.SetDefault("server.api_key", "")
	viper.SetDefault("server.timeout", 30*time.Second)

	// Stream 配置
	viper.SetDefault("stream.modes", []string{"values", "custom"})
	viper.SetDefault("stream.subgraphs", true)
	viper.SetDefault("stream.resumable", true)

	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Audit 配置
	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.path", "")

	// Gateway 配置（观察者端口）
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 18790)

	// Diagnostics 配置
	viper.SetDefault("diagnostics.schedule", "@every 30s")
	viper.SetDefault("diagnostics.min_server_version", "")
}
