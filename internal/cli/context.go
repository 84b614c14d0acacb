package cli

import (
	"errors"
	"sync"

	"agentdesk/internal/config"
	"agentdesk/internal/interrupt"
	"agentdesk/internal/notify"
	"agentdesk/internal/operator"
	"agentdesk/internal/session"
	"agentdesk/internal/storage"
	"agentdesk/internal/transport"
	"agentdesk/pkg/logger"

	"github.com/rs/zerolog"
)

// errNoContext 在 PersistentPreRunE 未执行时返回
var errNoContext = errors.New("CLI context not initialized")

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	auditOnce sync.Once
	audit     *storage.DB
	auditErr  error
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// Transport 根据配置创建 agent 服务客户端
func (c *CLIContext) Transport() *transport.Client {
	return transport.NewClient(transport.Config{
		APIURL:  c.Config.Server.APIURL,
		APIKey:  c.Config.Server.APIKey,
		Timeout: c.Config.Server.Timeout,
	})
}

// AuditPath 返回办理记录库路径
func (c *CLIContext) AuditPath() (string, error) {
	if c.Config.Audit.Path != "" {
		return c.Config.Audit.Path, nil
	}
	return config.DefaultAuditPath()
}

// GetAudit 获取办理记录库（懒加载），未启用时返回 nil
func (c *CLIContext) GetAudit() (*storage.DB, error) {
	if !c.Config.Audit.Enabled {
		return nil, nil
	}
	return c.openAudit()
}

func (c *CLIContext) openAudit() (*storage.DB, error) {
	c.auditOnce.Do(func() {
		path, err := c.AuditPath()
		if err != nil {
			c.auditErr = err
			return
		}
		c.audit, c.auditErr = storage.Open(path)
	})
	return c.audit, c.auditErr
}

// NewOperator 创建会话和操作员，sink 接收所有面向操作员的通知
func (c *CLIContext) NewOperator(tr transport.Transport, sink notify.Sink) (*operator.Operator, error) {
	sess, err := session.New(tr, session.Options{
		AssistantID: c.Config.Server.AssistantID,
		StreamModes: c.Config.Stream.Modes,
		Subgraphs:   c.Config.Stream.Subgraphs,
		Resumable:   c.Config.Stream.Resumable,
		Sink:        sink,
		Logger:      c.Log(),
	})
	if err != nil {
		return nil, err
	}

	audit, err := c.GetAudit()
	if err != nil {
		return nil, err
	}
	opts := operator.Options{Sink: sink, Logger: c.Log()}
	// typed nil 不能赋给接口
	if audit != nil {
		opts.Audit = interrupt.AuditLog(audit)
	}
	return operator.New(sess, opts), nil
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	if c.audit != nil {
		return c.audit.Close()
	}
	return nil
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
