package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	chirality "github.com/sgttomas/chirality-runtime"
	"github.com/sgttomas/chirality-runtime/internal/logging"
	mcpAdapter "github.com/sgttomas/chirality-runtime/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var (
		transport string
		addr      string
		baseURL   string
		asHuman   bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Exposes deliverable and session controls as MCP tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries JSON-RPC; logs go to stderr only.
			logger := logging.New(cfg.Level())
			rt, err := chirality.New(cfg, chirality.WithLogger(logger))
			if err != nil {
				return err
			}
			defer rt.Close()

			srvOpts := []mcpAdapter.Option{mcpAdapter.WithLogger(logger)}
			if asHuman {
				srvOpts = append(srvOpts, mcpAdapter.WithActor(opts.human()))
			}
			srv := mcpAdapter.NewServer(rt, strings.TrimSpace(chirality.Version), srvOpts...)

			switch transport {
			case "stdio":
				logger.Info("starting chirality MCP server (stdio)")
				return srv.ServeStdio()
			case "sse":
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if baseURL == "" {
					baseURL = "http://localhost" + addr
				}
				return srv.ServeSSE(ctx, addr, baseURL)
			default:
				return fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Listen address (only for SSE)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL (only for SSE)")
	cmd.Flags().BoolVar(&asHuman, "as-human", false, "Record deliverable transitions as the CLI user instead of the system actor")
	return cmd
}
