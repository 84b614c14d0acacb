package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"agentdesk/internal/operator"
	"agentdesk/internal/thread"
)

// errQuit 结束交互会话
var errQuit = errors.New("quit")

// command 一行交互输入。不以 / 开头的输入是发给 agent 的消息。
type command struct {
	name string
	arg  string
}

func parseLine(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{arg: line}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

// parseAssignment 解析 key=value
func parseAssignment(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return key, strings.TrimSpace(value), nil
}

const consoleHelp = `Commands:
  <text>            send a message to the agent
  /stop             stop the running stream
  /new              start a new conversation
  /regen [id]       rerun from before a message (default: last agent message)
  /show             show the pending interrupt and drafts
  /accept           accept the action as proposed
  /edit key=value   edit an action argument
  /reply <text>     answer the agent instead of running the action
  /type <type>      select accept, edit, response or ignore
  /submit           submit the selected response
  /ignore           dismiss the interrupt
  /resolve          end the run
  /quit             leave`

// console 把交互命令映射到操作员
type console struct {
	op  *operator.Operator
	out io.Writer
}

func (c *console) execute(ctx context.Context, line string) error {
	cmd, isCommand := parseLine(line)
	if !isCommand {
		if cmd.arg == "" {
			return nil
		}
		return c.op.Session().Start(ctx, cmd.arg, nil)
	}

	sess := c.op.Session()
	switch cmd.name {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "stop":
		return sess.Stop(ctx)
	case "new":
		if err := sess.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Starting new conversation...")
		return nil
	case "regen":
		id := cmd.arg
		if id == "" {
			id = lastAgentMessage(sess.Snapshot())
		}
		if id == "" {
			return errors.New("no agent message to regenerate")
		}
		return sess.Regenerate(ctx, id)
	case "show":
		writeView(c.out, c.op.View())
		return nil
	case "accept":
		if err := c.op.SelectType(thread.ResponseAccept); err != nil {
			return err
		}
		return c.op.Submit(ctx)
	case "edit":
		key, value, err := parseAssignment(cmd.arg)
		if err != nil {
			return err
		}
		draft, err := c.draft(thread.ResponseEdit)
		if err != nil {
			return err
		}
		if err := c.op.SetArg(draft, key, value); err != nil {
			return err
		}
		return c.op.SelectType(thread.ResponseEdit)
	case "reply":
		draft, err := c.draft(thread.ResponseResponse)
		if err != nil {
			return err
		}
		if err := c.op.SetResponse(draft, cmd.arg); err != nil {
			return err
		}
		return c.op.SelectType(thread.ResponseResponse)
	case "type":
		return c.op.SelectType(thread.ResponseType(strings.ToLower(cmd.arg)))
	case "submit":
		return c.op.Submit(ctx)
	case "ignore":
		return c.op.Ignore(ctx)
	case "resolve":
		return c.op.Resolve(ctx)
	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd.name)
	}
}

func (c *console) draft(t thread.ResponseType) (int, error) {
	r := c.op.Resolver()
	if r == nil {
		return 0, operator.ErrNoInterrupt
	}
	return r.DraftIndex(t), nil
}

func lastAgentMessage(snap thread.Snapshot) string {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if m.Role == thread.RoleAgent && !m.Hidden() {
			return m.ID
		}
	}
	return ""
}
