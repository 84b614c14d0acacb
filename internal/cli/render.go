package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"agentdesk/internal/operator"
	"agentdesk/internal/thread"
)

// maxToolOutput 工具输出截断长度
const maxToolOutput = 500

// printer 把会话快照渲染到终端。流式中的消息在运行停下后一次性输出，
// 进度提示和新的中断即时输出。
type printer struct {
	out io.Writer

	mu        sync.Mutex
	seen      map[string]bool
	notes     int
	interrupt string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[string]bool)}
}

// observe 是会话的快照监听器，不能回调会话
func (p *printer) observe(snap thread.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.ThreadID == "" && len(snap.Messages) == 0 {
		p.seen = make(map[string]bool)
		p.notes = 0
		p.interrupt = ""
		return
	}

	if len(snap.ProgressNotes) < p.notes {
		p.notes = 0
	}
	for _, note := range snap.ProgressNotes[p.notes:] {
		fmt.Fprintf(p.out, "… %s\n", note)
	}
	p.notes = len(snap.ProgressNotes)

	if snap.Status == thread.StatusStreaming {
		return
	}

	for i, msg := range snap.Messages {
		key := msg.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		if msg.Hidden() {
			continue
		}
		writeMessage(p.out, msg)
	}

	if snap.Interrupt == nil {
		p.interrupt = ""
		return
	}
	if id := snap.Interrupt.Identity(); id != p.interrupt {
		p.interrupt = id
		writeInterrupt(p.out, snap.Interrupt)
	}
}

func writeMessage(w io.Writer, msg thread.Message) {
	switch msg.Role {
	case thread.RoleHuman:
		// 操作员自己输入的内容不回显
	case thread.RoleAgent:
		if text := strings.TrimSpace(string(msg.Content)); text != "" {
			fmt.Fprintf(w, "Agent: %s\n", text)
		}
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(w, "  → %s(%s)\n", tc.Name, formatArgs(tc.Args))
		}
	case thread.RoleTool:
		output := string(msg.Content)
		if len(output) > maxToolOutput {
			output = output[:maxToolOutput] + "...(truncated)"
		}
		name := msg.Name
		if name == "" {
			name = "tool"
		}
		fmt.Fprintf(w, "  [%s] %s\n", name, output)
	}
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "…"
	}
	return string(data)
}

func writeInterrupt(w io.Writer, intr *thread.Interrupt) {
	fmt.Fprintln(w)
	if intr.Generic() {
		fmt.Fprintln(w, "Agent paused for input:")
		if len(intr.Raw) > 0 {
			fmt.Fprintf(w, "  %s\n", string(intr.Raw))
		}
		fmt.Fprintln(w, "Commands: /reply <text>  /resolve")
		return
	}

	fmt.Fprintln(w, "Agent paused for approval:")
	allowed := make(map[thread.ResponseType]bool)
	for i, req := range intr.Requests {
		types := make([]string, 0, len(req.Allowed))
		for _, t := range req.Allowed {
			types = append(types, string(t))
			allowed[t] = true
		}
		fmt.Fprintf(w, "  [%d] %s  (%s)\n", i, req.Name, strings.Join(types, ", "))
		if req.Description != "" {
			fmt.Fprintf(w, "      %s\n", req.Description)
		}
		writeArgs(w, req.Args, "      ")
	}

	cmds := make([]string, 0, 6)
	if allowed[thread.ResponseAccept] {
		cmds = append(cmds, "/accept")
	}
	if allowed[thread.ResponseEdit] {
		cmds = append(cmds, "/edit key=value")
	}
	if allowed[thread.ResponseResponse] {
		cmds = append(cmds, "/reply <text>")
	}
	if allowed[thread.ResponseIgnore] {
		cmds = append(cmds, "/ignore")
	}
	cmds = append(cmds, "/submit", "/resolve")
	fmt.Fprintf(w, "Commands: %s\n", strings.Join(cmds, "  "))
}

func writeArgs(w io.Writer, args map[string]string, indent string) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s = %s\n", indent, k, args[k])
	}
}

// writeView 输出解析器当前状态
func writeView(w io.Writer, v operator.View) {
	if !v.Pending {
		fmt.Fprintf(w, "No pending interrupt (state: %s)\n", v.State)
		return
	}
	fmt.Fprintf(w, "Interrupt %s  state: %s  submit: %s\n", v.InterruptID, v.State, v.SelectedSubmitType)
	for i, d := range v.Drafts {
		mark := " "
		if d.Type == v.SelectedSubmitType {
			mark = "*"
		}
		fmt.Fprintf(w, " %s draft %d: %s %s\n", mark, i, d.Type, d.Action)
		if d.Type == thread.ResponseResponse {
			fmt.Fprintf(w, "      reply: %q\n", d.Text)
			continue
		}
		writeArgs(w, d.Args, "      ")
	}
	if v.Error != "" {
		fmt.Fprintf(w, "Last error: %s\n", v.Error)
	}
}
