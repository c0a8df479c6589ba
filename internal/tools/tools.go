// Package tools registers the unfuscator MCP tools.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"unfuscator/internal/mapping"
	"unfuscator/internal/mcp"
	"unfuscator/internal/render"
	"unfuscator/internal/signature"
	"unfuscator/internal/unfuscate"
	"unfuscator/internal/version"
)

// RegisterAll registers every tool on server.
func RegisterAll(server *mcp.Server, store mapping.Store, u *unfuscate.Unfuscator) {
	registerUnfuscateTrace(server, u)
	registerListVersions(server, store)
	registerStoreStats(server, store)
}

func registerUnfuscateTrace(server *mcp.Server, u *unfuscate.Unfuscator) {
	tool := mcp.Tool{
		Name: "unfuscate_trace",
		Description: "Resolve an obfuscated .NET stack trace to the original method signatures. " +
			"Each line of the trace must hold one frame, e.g. \"at a.b(Int32 id)\". " +
			"Unresolved frames are printed followed by '?'.",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]mcp.Property{
				"trace": {
					Type:        "string",
					Description: "The obfuscated stack trace",
				},
				"target_version": {
					Type:        "string",
					Description: "Version of the build that produced the trace, e.g. 1.2.3.4",
				},
				"format": {
					Type:        "string",
					Description: "Output format (default: text)",
					Enum:        render.Names(),
				},
			},
			Required: []string{"trace"},
		},
	}

	handler := func(ctx context.Context, args map[string]any) (*mcp.ToolsCallResult, error) {
		trace, ok := args["trace"].(string)
		if !ok || trace == "" {
			return nil, fmt.Errorf("trace is required")
		}

		var target *version.Version
		if tv, ok := args["target_version"].(string); ok && tv != "" {
			v, err := version.Parse(tv)
			if err != nil {
				return nil, err
			}
			target = v
		}

		format := "text"
		if f, ok := args["format"].(string); ok && f != "" {
			format = f
		}
		writer, err := render.ByName(format)
		if err != nil {
			return nil, err
		}

		res, err := u.Unfuscate(ctx, trace, target)
		if err != nil {
			var perr *signature.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w\n%s", err, perr.Caret())
			}
			return nil, err
		}

		var buf bytes.Buffer
		if err := writer.Write(&buf, res, target); err != nil {
			return nil, err
		}
		return mcp.TextResult(buf.String()), nil
	}

	server.RegisterTool(tool, handler)
}

func registerListVersions(server *mcp.Server, store mapping.Store) {
	tool := mcp.Tool{
		Name:        "list_versions",
		Description: "List the versions of the Dotfuscator maps loaded into the store.",
		InputSchema: mcp.InputSchema{Type: "object"},
	}

	handler := func(ctx context.Context, args map[string]any) (*mcp.ToolsCallResult, error) {
		vs, err := store.Versions(ctx)
		if err != nil {
			return nil, err
		}
		if vs == nil {
			vs = []*version.Version{}
		}
		return jsonResult(map[string]any{"versions": vs})
	}

	server.RegisterTool(tool, handler)
}

func registerStoreStats(server *mcp.Server, store mapping.Store) {
	sp, ok := store.(mapping.StatsProvider)
	if !ok {
		return
	}
	tool := mcp.Tool{
		Name:        "store_stats",
		Description: "Report how many mapping records, versions and map files the store holds.",
		InputSchema: mcp.InputSchema{Type: "object"},
	}

	handler := func(ctx context.Context, args map[string]any) (*mcp.ToolsCallResult, error) {
		st, err := sp.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(st)
	}

	server.RegisterTool(tool, handler)
}

func jsonResult(v any) (*mcp.ToolsCallResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.TextResult(string(data)), nil
}
