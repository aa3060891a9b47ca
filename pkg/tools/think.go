package tools

import "context"

// ThinkTool gives an agent a private scratch pad: the model can reason
// step by step without the thought ever reaching a session participant.
// Never permission-gated.
type ThinkTool struct{}

func NewThinkTool() *ThinkTool {
	return &ThinkTool{}
}

func (t *ThinkTool) Name() string {
	return "think"
}

func (t *ThinkTool) Description() string {
	return "Use this tool to think through a problem step-by-step before acting. Your thought is private and not shown to the user. Use it when you need to reason about complex decisions, plan multi-step actions, or analyze information before responding."
}

func (t *ThinkTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"thought": map[string]interface{}{
				"type":        "string",
				"description": "Your step-by-step reasoning or analysis",
			},
		},
		"required": []string{"thought"},
	}
}

func (t *ThinkTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	thought, _ := args["thought"].(string)
	if thought == "" {
		return ErrorResult("thought is required")
	}
	return SilentResult("Thought recorded.")
}

// RequiresPermission implements PermissionedTool: thinking never requires
// human sign-off.
func (t *ThinkTool) RequiresPermission() bool {
	return false
}
