package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentdesk/internal/storage/migrations"
)

// Set with -ldflags "-X agentdesk/internal/cli.Version=..." at release time.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string `json:"version"`
	GitCommit   string `json:"git_commit"`
	BuildTime   string `json:"build_time"`
	Modified    bool   `json:"modified,omitempty"`
	AuditSchema int    `json:"audit_schema"`
	GoVersion   string `json:"go_version"`
	Platform    string `json:"platform"`
}

// currentBuild fills missing ldflags values from the module's VCS stamp.
func currentBuild() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if len(info.GitCommit) > 12 {
		info.GitCommit = info.GitCommit[:12]
	}
	if scripts, err := migrations.Scripts(); err == nil && len(scripts) > 0 {
		info.AuditSchema = scripts[len(scripts)-1].Version
	}
	return info
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentBuild()
			out := cmd.OutOrStdout()

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			commit := orUnknown(info.GitCommit)
			if info.Modified {
				commit += " (dirty)"
			}
			fmt.Fprintf(out, "agentdesk %s\n", info.Version)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "  commit\t%s\n", commit)
			fmt.Fprintf(tw, "  built\t%s\n", orUnknown(info.BuildTime))
			fmt.Fprintf(tw, "  audit schema\tv%d\n", info.AuditSchema)
			fmt.Fprintf(tw, "  go\t%s %s\n", info.GoVersion, info.Platform)
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
