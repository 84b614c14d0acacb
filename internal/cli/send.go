package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agentdesk/internal/notify"
	"agentdesk/internal/thread"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	var (
		contextArgs []string
		timeout     time.Duration
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Run the agent once and print the result",
		Long: `Send one message in a new thread, wait for the run to finish and print
the agent's answer. If the agent pauses for human input the pending actions
are printed and the command exits; use 'agentdesk chat' or 'agentdesk serve'
to resolve interrupts.`,
		Example: `  agentdesk send "Summarise open incidents"
  agentdesk send --context team=sre "Who is on call?"
  agentdesk send --json "hello"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}

			runContext, err := parseContext(contextArgs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			op, err := cliCtx.NewOperator(cliCtx.Transport(), notify.NewWriterSink(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer op.Close()
			sess := op.Session()

			if !jsonOutput {
				defer sess.Subscribe(newPrinter(out).observe)()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := sess.Start(ctx, strings.Join(args, " "), runContext); err != nil {
				return err
			}
			if err := sess.Wait(ctx); err != nil {
				_ = shutdownSession(sess.Stop)
				return fmt.Errorf("run did not finish: %w", err)
			}

			snap := sess.Snapshot()
			if jsonOutput {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			}

			switch snap.Status {
			case thread.StatusError:
				return fmt.Errorf("run failed: %s", snap.LastError)
			case thread.StatusAwaitingHumanInput:
				fmt.Fprintf(cmd.ErrOrStderr(), "\nRun paused on thread %s.\n", snap.ThreadID)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&contextArgs, "context", nil, "run context entry key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "maximum run duration")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the final snapshot as JSON")

	return cmd
}

func parseContext(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		key, value, err := parseAssignment(e)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}
