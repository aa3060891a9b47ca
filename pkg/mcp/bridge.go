package mcp

import (
	"context"
	"fmt"

	"github.com/hybridchat/hub/pkg/tools"
)

// BridgeTool wraps one MCP server tool as a hub Tool.
type BridgeTool struct {
	manager    *Manager
	serverName string
	toolDef    ToolDefinition
}

// NewBridgeTool creates a hub tool that delegates to an MCP server tool.
func NewBridgeTool(manager *Manager, serverName string, toolDef ToolDefinition) *BridgeTool {
	return &BridgeTool{manager: manager, serverName: serverName, toolDef: toolDef}
}

func (t *BridgeTool) Name() string {
	return fmt.Sprintf("mcp_%s_%s", t.serverName, t.toolDef.Name)
}

func (t *BridgeTool) Description() string {
	return fmt.Sprintf("[MCP:%s] %s", t.serverName, t.toolDef.Description)
}

func (t *BridgeTool) Parameters() map[string]interface{} {
	if t.toolDef.InputSchema != nil {
		return t.toolDef.InputSchema
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	result, err := t.manager.CallTool(t.serverName, t.toolDef.Name, args)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("MCP tool %s/%s error: %v", t.serverName, t.toolDef.Name, err))
	}
	return tools.SilentResult(result)
}

// RegisterTools discovers all of manager's tools and registers them in
// registry.
func RegisterTools(manager *Manager, registry *tools.ToolRegistry) int {
	discovered := manager.DiscoverTools()
	for _, entry := range discovered {
		bridge := NewBridgeTool(manager, entry.Server, entry.Tool)
		registry.Register(bridge)
	}
	return len(discovered)
}
