package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"agentdesk/internal/diagnostics"
)

// NewInfoCmd creates the info command.
func NewInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Check the agent server",
		Long: `Probe the configured agent server and report:
- Configuration file in use
- Server reachability and latency
- Server version and whether it satisfies diagnostics.min_server_version
- Resolution audit log location`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			cfg := cliCtx.Config

			prober, err := diagnostics.NewProber(cliCtx.Transport(), cfg.Diagnostics.MinServerVersion)
			if err != nil {
				return err
			}
			st := prober.Check(cmd.Context())

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, _ := json.MarshalIndent(map[string]any{
					"api_url":      cfg.Server.APIURL,
					"assistant_id": cfg.Server.AssistantID,
					"server":       st,
				}, "", "  ")
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintln(out, "agentdesk info")
				fmt.Fprintln(out, "==============")
				fmt.Fprintln(out)
				results := []checkResult{
					checkConfigFile(cliCtx.ConfigPath),
					checkServer(cfg.Server.APIURL, st),
					checkVersion(st),
					checkAudit(cliCtx),
				}
				printResults(out, results)
			}

			if !st.Reachable {
				return errors.New("agent server is unreachable")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

func printResults(w io.Writer, results []checkResult) {
	for _, r := range results {
		icon := "✓"
		switch r.status {
		case "warning":
			icon = "⚠️"
		case "error":
			icon = "✗"
		}
		fmt.Fprintf(w, "%s %-12s %s\n", icon, r.name, r.message)
	}
}

func checkConfigFile(path string) checkResult {
	if path == "" {
		return checkResult{"Config", "warning", "no config file, using defaults"}
	}
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config", "warning", fmt.Sprintf("%s not found, using defaults (run 'agentdesk config init')", path)}
	}
	return checkResult{"Config", "ok", path}
}

func checkServer(apiURL string, st diagnostics.Status) checkResult {
	if !st.Reachable {
		return checkResult{"Server", "error", fmt.Sprintf("%s unreachable: %s", apiURL, st.Error)}
	}
	return checkResult{"Server", "ok", fmt.Sprintf("%s (%s)", apiURL, st.Latency.Round(time.Millisecond))}
}

func checkVersion(st diagnostics.Status) checkResult {
	switch {
	case !st.Reachable:
		return checkResult{"Version", "warning", "unknown"}
	case !st.Compatible:
		msg := fmt.Sprintf("%s does not satisfy %s", st.Version, st.Constraint)
		if st.Error != "" {
			msg = st.Error
		}
		return checkResult{"Version", "error", msg}
	case st.Constraint != "":
		return checkResult{"Version", "ok", fmt.Sprintf("%s (%s)", st.Version, st.Constraint)}
	case st.Version == "":
		return checkResult{"Version", "ok", "not reported"}
	default:
		return checkResult{"Version", "ok", st.Version}
	}
}

func checkAudit(cliCtx *CLIContext) checkResult {
	if !cliCtx.Config.Audit.Enabled {
		return checkResult{"Audit", "ok", "disabled"}
	}
	audit, err := cliCtx.GetAudit()
	if err != nil {
		return checkResult{"Audit", "error", err.Error()}
	}
	v, err := audit.SchemaVersion()
	if err != nil {
		return checkResult{"Audit", "error", err.Error()}
	}
	return checkResult{"Audit", "ok", fmt.Sprintf("%s (schema v%d)", audit.Path(), v)}
}
