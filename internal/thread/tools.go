package thread

import "github.com/google/uuid"

// HiddenIDPrefix marks messages that exist for bookkeeping and are never rendered.
const HiddenIDPrefix = "do-not-render-"

// ToolHandledContent is the body of a synthesized tool response.
const ToolHandledContent = "Successfully handled tool call."

// EnsureToolResponses returns the tool messages that must be sent ahead of a new
// human message so that every agent tool call has a response. An agent message
// followed directly by a tool message is considered answered.
func EnsureToolResponses(msgs []Message) []Message {
	var out []Message
	for i, m := range msgs {
		if m.Role != RoleAgent || len(m.ToolCalls) == 0 {
			continue
		}
		if i+1 < len(msgs) && msgs[i+1].Role == RoleTool {
			continue
		}
		for _, tc := range m.ToolCalls {
			out = append(out, Message{
				ID:         HiddenIDPrefix + uuid.NewString(),
				Role:       RoleTool,
				Content:    ToolHandledContent,
				Name:       tc.Name,
				ToolCallID: tc.ID,
			})
		}
	}
	return out
}
