package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"agentdesk/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// 敏感配置键（需要脱敏）
var sensitiveKeys = map[string]bool{
	"server.api_key": true,
}

// NewConfigCmd 创建 config 命令组
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Create, show, get and set configuration values",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

// configPathOf 返回命令实际使用的配置文件路径
func configPathOf(cmd *cobra.Command) (string, error) {
	if cliCtx := GetCLIContext(cmd); cliCtx != nil && cliCtx.ConfigPath != "" {
		return config.ExpandPath(cliCtx.ConfigPath)
	}
	return config.DefaultConfigPath()
}

func newConfigInitCmd() *cobra.Command {
	var (
		force       bool
		apiURL      string
		assistantID string
		apiKey      string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPathOf(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
			}

			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			cfg := cliCtx.Config
			if apiURL != "" {
				cfg.Server.APIURL = strings.TrimRight(apiURL, "/")
			}
			if assistantID != "" {
				cfg.Server.AssistantID = assistantID
			}
			if apiKey == "" && term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprint(cmd.OutOrStdout(), "API key (leave empty for none): ")
				keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read API key: %w", err)
				}
				apiKey = strings.TrimSpace(string(keyBytes))
			}
			if apiKey != "" {
				cfg.Server.APIKey = apiKey
			}

			if err := config.SaveTo(cfg, path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "agent server URL")
	cmd.Flags().StringVar(&assistantID, "assistant", "", "assistant or graph id")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "agent server API key")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPathOf(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			cfg := *cliCtx.Config
			if !showAll && cfg.Server.APIKey != "" {
				cfg.Server.APIKey = maskValue(cfg.Server.APIKey)
			}
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "show sensitive values")

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Get a configuration value, or list all keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				value := config.Get(args[0])
				if value == nil {
					return fmt.Errorf("key not found: %s", args[0])
				}
				fmt.Fprintln(out, value)
				return nil
			}

			keys := flattenSettings("", viper.AllSettings())
			sort.Strings(keys)
			for _, key := range keys {
				value := viper.Get(key)
				if s, ok := value.(string); ok && sensitiveKeys[key] && s != "" {
					value = maskValue(s)
				}
				fmt.Fprintf(out, "%s = %v\n", key, value)
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]

			if err := config.Set(key, value); err != nil {
				return fmt.Errorf("set config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

func flattenSettings(prefix string, settings map[string]any) []string {
	var keys []string

	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(map[string]any); ok {
			keys = append(keys, flattenSettings(key, nested)...)
		} else {
			keys = append(keys, key)
		}
	}

	return keys
}

func maskValue(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
