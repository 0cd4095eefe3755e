// Package workers holds the tool-style workers behind the HTTP and MCP
// surfaces.
package workers

import (
	"context"
	"encoding/json"
)

type ToolDef struct {
	Name        string
	Description string
}

// Worker exposes named tools that take and return JSON.
type Worker interface {
	GetTools() []ToolDef
	Execute(ctx context.Context, name string, input json.RawMessage) ([]byte, error)
}

var _ Worker = (*ContractWorker)(nil)
