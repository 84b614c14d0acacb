package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentdesk/internal/notify"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Start an interactive operator session",
		Long: `Start an interactive session with the configured assistant.

Plain input is sent to the agent. When the agent pauses for human input the
pending actions are printed and can be accepted, edited, answered or ignored
with slash commands. Type /help for the full list.`,
		Example: `  # Interactive session
  agentdesk chat

  # Open with a first message
  agentdesk chat "Draft the weekly report"`,
		RunE: runChat,
	}

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}

	out := cmd.OutOrStdout()
	sink := notify.NewWriterSink(cmd.ErrOrStderr())
	op, err := cliCtx.NewOperator(cliCtx.Transport(), sink)
	if err != nil {
		return err
	}
	defer op.Close()

	p := newPrinter(out)
	defer op.Session().Subscribe(p.observe)()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := &console{op: op, out: out}
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Fprintln(out, "agentdesk interactive session")
		fmt.Fprintf(out, "Assistant %q at %s. Type /help for commands, /quit to leave.\n\n",
			op.Session().AssistantID(), cliCtx.Config.Server.APIURL)
	}

	if len(args) > 0 {
		if err := c.execute(ctx, strings.Join(args, " ")); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	lines := readLines(bufio.NewReader(cmd.InOrStdin()))
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return shutdownSession(op.Session().Stop)
		case line, ok = <-lines:
		}
		if !ok {
			// 非交互输入读完后等待最后一次运行结束
			if !interactive {
				waitCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
				_ = op.Session().Wait(waitCtx)
				cancel()
			}
			return shutdownSession(op.Session().Stop)
		}

		err := c.execute(ctx, line)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(out, "Goodbye!")
			return shutdownSession(op.Session().Stop)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

// readLines 后台读取输入行，读完或出错时关闭通道
func readLines(r *bufio.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				ch <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
				}
				return
			}
		}
	}()
	return ch
}

// shutdownSession 离开前停止仍在进行的运行
func shutdownSession(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return stop(ctx)
}
