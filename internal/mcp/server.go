// Package mcp implements a Model Context Protocol server speaking
// newline-delimited JSON-RPC, so assistants can resolve stack traces as a
// tool.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const ProtocolVersion = "2024-11-05"

// ToolHandler handles one tool call. A returned error is reported to the
// client as a tool error result, not a protocol error.
type ToolHandler func(ctx context.Context, args map[string]any) (*ToolsCallResult, error)

// Server dispatches MCP requests to registered tools.
type Server struct {
	name     string
	version  string
	tools    []Tool
	handlers map[string]ToolHandler
	logger   *slog.Logger

	writeMu sync.Mutex
}

// NewServer creates a server announcing itself as name/version. A nil
// logger uses slog.Default.
func NewServer(name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		name:     name,
		version:  version,
		handlers: make(map[string]ToolHandler),
		logger:   logger.With("component", "mcp"),
	}
}

// RegisterTool adds a tool to the server.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.tools = append(s.tools, tool)
	s.handlers[tool.Name] = handler
}

// Tools returns the registered tools.
func (s *Server) Tools() []Tool {
	return s.tools
}

// Run serves requests read line by line from r, writing responses to w,
// until r is exhausted or ctx is cancelled. Both end the run without error.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errc <- fmt.Errorf("reading requests: %w", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(string(line)) == "" {
				continue
			}
			if resp := s.HandleMessage(ctx, line); resp != nil {
				if err := s.writeResponse(w, resp); err != nil {
					return fmt.Errorf("writing response: %w", err)
				}
			}
		}
	}
}

// HandleMessage handles one raw JSON-RPC message. It returns nil for
// notifications.
func (s *Server) HandleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("parse error", "error", err)
		return errorResponse(nil, ParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, InvalidRequest, "Invalid request", nil)
	}

	s.logger.Debug("received request", "method", req.Method, "id", string(req.ID))

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
			ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
		})
	case "initialized", "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		resp = resultResponse(req.ID, struct{}{})
	case "tools/list":
		resp = resultResponse(req.ID, ToolsListResult{Tools: s.tools})
	case "tools/call":
		resp = s.handleToolsCall(ctx, &req)
	default:
		resp = errorResponse(req.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, InvalidParams, "Invalid params", nil)
	}

	handler, ok := s.handlers[params.Name]
	if !ok {
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name), nil)
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	result, err := handler(ctx, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", "tool", params.Name, "error", err)
		result = TextResult(err.Error())
		result.IsError = true
	}
	return resultResponse(req.ID, result)
}

func (s *Server) writeResponse(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, msg string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg, Data: data}}
}
