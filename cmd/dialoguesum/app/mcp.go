package app

import (
	"github.com/spf13/cobra"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the summarize_dialogue tool over MCP stdio",
		Long: `Serve the summarize_dialogue MCP tool on stdin/stdout. Logs go to stderr.
The server exits when stdin is closed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.server.Initialize(cmd.Context()); err != nil {
				return err
			}

			srv, err := env.server.MCPServer()
			if err != nil {
				return err
			}
			defer srv.Stop()

			return srv.Start()
		},
	}
}
