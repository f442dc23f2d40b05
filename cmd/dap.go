package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	wadbgdap "github.com/hitzhangjie/wadbg/pkg/dap"
	"github.com/hitzhangjie/wadbg/pkg/target"
)

// dapCmd serves the Debug Adapter Protocol on stdin/stdout so editors can
// drive the debugger.
var dapCmd = &cobra.Command{
	Use:   "dap",
	Short: "run a Debug Adapter Protocol server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.New(os.Stderr, "wadbg-dap ", log.LstdFlags)

		var conn *cdp.Conn
		connect := func(ctx context.Context, host string, port int, url string, sink target.EventSink) (*target.DebugSession, func() error, error) {
			session, c, err := dialAndActivate(ctx, host, port, url, sink, logger)
			if err != nil {
				return nil, nil, err
			}
			conn = c
			return session, c.Wait, nil
		}

		server := wadbgdap.NewServer(os.Stdin, os.Stdout, connect, logger)
		err := server.Serve(context.Background())
		if conn != nil {
			conn.Close()
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(dapCmd)
}
