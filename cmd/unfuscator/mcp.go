package main

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"unfuscator/internal/mcp"
	"unfuscator/internal/tools"
	"unfuscator/internal/unfuscate"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the unfuscator tools over MCP on stdin/stdout",
		Long: heredoc.Doc(`
			Run a Model Context Protocol server on stdin/stdout exposing the
			unfuscate_trace, list_versions and store_stats tools. Logs go to
			stderr.`),
		Example: heredoc.Doc(`
			# List the tools
			❯ echo '{"jsonrpc":"2.0","id":1,"method":"tools/list"}' | unfuscator mcp --db ~/maps.db`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			u := unfuscate.New(store,
				unfuscate.WithLogger(a.logger),
				unfuscate.WithConcurrency(a.cfg.Trace.Concurrency))
			server := mcp.NewServer("unfuscator", AppVersion, a.logger)
			tools.RegisterAll(server, store, u)
			return server.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
