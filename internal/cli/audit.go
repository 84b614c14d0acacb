package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentdesk/internal/storage"
)

// NewAuditCmd 创建 audit 命令
func NewAuditCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recorded interrupt decisions",
		Long: `List the operator decisions recorded in the resolution audit log, newest
first. Recording is enabled with audit.enabled; the log can be read either way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			db, err := cliCtx.openAudit()
			if err != nil {
				return err
			}

			decisions, err := db.ListDecisions(limit)
			if err != nil {
				return fmt.Errorf("list decisions: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if decisions == nil {
					decisions = []*storage.Decision{}
				}
				data, _ := json.MarshalIndent(decisions, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}
			if len(decisions) == 0 {
				fmt.Fprintln(out, "No decisions recorded.")
				return nil
			}
			writeDecisions(out, decisions)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of decisions to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	cmd.AddCommand(newAuditShowCmd())

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			db, err := cliCtx.openAudit()
			if err != nil {
				return err
			}

			d, err := db.GetDecision(args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("decision %s not found", args[0])
			}
			if err != nil {
				return err
			}

			data, _ := json.MarshalIndent(d, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func writeDecisions(w io.Writer, decisions []*storage.Decision) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTHREAD\tINTERRUPT\tACTIONS\tTYPE\tOUTCOME\tDETAIL")
	for _, d := range decisions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			d.ThreadID,
			d.InterruptID,
			strings.Join(d.Actions, ","),
			d.SubmitType,
			d.Outcome,
			d.Detail,
		)
	}
	tw.Flush()
}
