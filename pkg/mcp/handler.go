package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ericksa/contractrisk/internal/audit"
	"github.com/ericksa/contractrisk/internal/workers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ServerName    = "contractrisk"
	ServerVersion = "1.0.0"
)

type AnalyzeTextInput struct {
	Text string `json:"text" jsonschema:"Contract text to score against the risk rules"`
}

type ContractIDInput struct {
	ID int64 `json:"id" jsonschema:"Contract ID as returned by contract_list"`
}

type RisksInput struct {
	Severity string `json:"severity,omitempty" jsonschema:"Filter by severity: high, medium, low"`
}

type EmptyInput struct{}

// Handler exposes workers as MCP tools and as plain JSON tool calls.
type Handler struct {
	audit   *audit.Auditor
	workers map[string]workers.Worker
	server  *mcp.Server
	http    http.Handler
}

func NewHandler(contract *workers.ContractWorker, auditor *audit.Auditor) *Handler {
	h := &Handler{
		audit:   auditor,
		workers: map[string]workers.Worker{"contract": contract},
	}
	h.initMCPServer()
	return h
}

func (h *Handler) initMCPServer() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	contract := h.workers["contract"]
	addTool[AnalyzeTextInput](h, server, contract, "contract_analyze_text",
		"Score contract text against the fixed risk rules. Returns findings (type, severity, occurrences), riskScore (0-100), riskLevel and wordCount. Nothing is stored.")
	addTool[EmptyInput](h, server, contract, "contract_list",
		"List uploaded contracts, newest first, with status and risk score.")
	addTool[ContractIDInput](h, server, contract, "contract_get",
		"Get one stored contract and the risks detected when it was uploaded.")
	addTool[RisksInput](h, server, contract, "contract_risks",
		"List stored risks across all contracts, optionally filtered by severity.")
	addTool[EmptyInput](h, server, contract, "contract_stats",
		"Dashboard counts: contracts analyzed, risks detected, active vendors.")
	addTool[ContractIDInput](h, server, contract, "contract_delete",
		"Delete a contract, its risks and the stored original file.")
	addTool[EmptyInput](h, server, contract, "contract_rules",
		"List every risk rule with its severity, weight and pattern.")

	h.server = server
	h.http = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func addTool[In any](h *Handler, server *mcp.Server, w workers.Worker, name, desc string) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        name,
		Description: desc,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		inputBytes, _ := json.Marshal(input)
		result, err := h.execute(ctx, w, name, inputBytes)
		if err != nil {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: err.Error()},
				},
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(result)},
			},
		}, nil, nil
	})
}

func (h *Handler) execute(ctx context.Context, w workers.Worker, toolName string, input json.RawMessage) ([]byte, error) {
	result, err := w.Execute(ctx, toolName, input)
	h.audit.Log("mcp", toolName, input, result, err)
	return result, err
}

// Server returns the underlying MCP server, e.g. for in-process transports.
func (h *Handler) Server() *mcp.Server {
	return h.server
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.http == nil {
		http.Error(w, "MCP server not initialized", http.StatusInternalServerError)
		return
	}
	h.http.ServeHTTP(w, r)
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tools lists every tool as <worker>_<tool>.
func (h *Handler) Tools() []ToolInfo {
	var tools []ToolInfo
	for name, worker := range h.workers {
		for _, tool := range worker.GetTools() {
			tools = append(tools, ToolInfo{Name: name + "_" + tool.Name, Description: tool.Description})
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// ExecuteTool runs a <worker>_<tool> call outside of an MCP session.
func (h *Handler) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) ([]byte, error) {
	for name, worker := range h.workers {
		prefix := name + "_"
		if len(toolName) > len(prefix) && strings.HasPrefix(toolName, prefix) {
			return h.execute(ctx, worker, toolName, args)
		}
	}
	return nil, fmt.Errorf("tool not found: %s", toolName)
}
