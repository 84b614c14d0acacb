package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the directory holding config.yaml and audit.db.
const HomeEnv = "AGENTDESK_HOME"

const (
	dirName        = ".agentdesk"
	configFileName = "config.yaml"
	auditFileName  = "audit.db"
)

// DefaultConfigDir 返回 $AGENTDESK_HOME，未设置时为 ~/.agentdesk
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// DefaultConfigPath 默认配置文件路径
func DefaultConfigPath() (string, error) {
	return inConfigDir(configFileName)
}

// DefaultAuditPath 默认办理记录库路径
func DefaultAuditPath() (string, error) {
	return inConfigDir(auditFileName)
}

func inConfigDir(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ExpandPath expands $VAR references and a leading ~ in path.
func ExpandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
