// Package config loads agentdesk settings from defaults, a YAML file and the
// environment, and resolves the paths they refer to.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"agentdesk/pkg/logger"
)

// Config 是应用配置的根结构体
type Config struct {
	Version     string            `mapstructure:"version" yaml:"version"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Stream      StreamConfig      `mapstructure:"stream" yaml:"stream"`
	Log         logger.LogConfig  `mapstructure:"log" yaml:"log"`
	Audit       AuditConfig       `mapstructure:"audit" yaml:"audit"`
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// ServerConfig 远端 agent 服务配置
type ServerConfig struct {
	APIURL      string        `mapstructure:"api_url" yaml:"api_url"`
	AssistantID string        `mapstructure:"assistant_id" yaml:"assistant_id"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StreamConfig 流式订阅选项
type StreamConfig struct {
	Modes     []string `mapstructure:"modes" yaml:"modes"`
	Subgraphs bool     `mapstructure:"subgraphs" yaml:"subgraphs"`
	Resumable bool     `mapstructure:"resumable" yaml:"resumable"`
}

// AuditConfig 办理记录（仅记录操作员决策，不保存会话内容）
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

// GatewayConfig 观察者网关配置
type GatewayConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr 返回监听地址
func (g GatewayConfig) Addr() string {
	host := g.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, g.Port)
}

// DiagnosticsConfig 连通性诊断配置
type DiagnosticsConfig struct {
	Schedule         string `mapstructure:"schedule" yaml:"schedule"`
	MinServerVersion string `mapstructure:"min_server_version" yaml:"min_server_version,omitempty"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置：默认值 < 配置文件 < 环境变量 (AGENTDESK_*)
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("AGENTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	cfg, err := decode()
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.APIURL = strings.TrimRight(cfg.Server.APIURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验会导致运行期失败的字段
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.api_url: %q is not an http(s) URL", c.Server.APIURL)
	}
	if strings.TrimSpace(c.Server.AssistantID) == "" {
		return errors.New("server.assistant_id must not be empty")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port: %d out of range", c.Gateway.Port)
	}
	return nil
}

// Watch 监听配置文件变化，变化后重新解码并回调
// 只在 Load 指定了配置文件后生效
func Watch(onChange func(*Config)) {
	mu.RLock()
	hasFile := configPath != ""
	mu.RUnlock()
	if !hasFile {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		mu.Lock()
		cfg, err := decode()
		if err == nil {
			globalConfig = cfg
		}
		mu.Unlock()

		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		logger.Info().Str("file", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	})
	viper.WatchConfig()
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path 返回当前配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get 获取任意配置键值
func Get(key string) any {
	return viper.Get(key)
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save 持久化当前所有配置
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 含 API Key，使用 0600
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
