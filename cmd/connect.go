package cmd

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitzhangjie/wadbg/cmd/debug"
	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/target"
)

// connectCmd attaches to an already running CDP endpoint and starts the
// interactive shell.
var connectCmd = &cobra.Command{
	Use:   "connect [url]",
	Short: "connect to a running Chrome compatible runtime and debug it",
	Long: `Connect to the CDP endpoint named by --remote, optionally navigate the
page to the given url, and enter the interactive debug shell.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := ""
		if len(args) != 0 {
			url = args[0]
		}

		host, port, err := splitRemote(viper.GetString("remote"))
		if err != nil {
			return err
		}

		logger := log.New(os.Stderr, "wadbg ", log.LstdFlags)
		session, conn, err := dialAndActivate(context.Background(), host, port, url, debug.ConsoleSink{}, logger)
		if err != nil {
			return err
		}
		debug.Target = session

		shell := debug.NewDebugShell()
		debug.CurrentSession = shell
		go func() {
			// shell ends when the transport dies
			conn.Wait()
			shell.Stop()
		}()
		shell.AtExit(func() {
			session.Deactivate()
			conn.Close()
		})
		shell.Start()

		if err := conn.Wait(); err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		return nil
	},
}

func splitRemote(remote string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(remote)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --remote %q: %v", remote, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --remote %q: %v", remote, err)
	}
	return host, port, nil
}

// dialAndActivate waits for the endpoint, picks the page target, dials its
// websocket and brings up an activated debug session on it.
func dialAndActivate(ctx context.Context, host string, port int, url string, sink target.EventSink, logger *log.Logger) (*target.DebugSession, *cdp.Conn, error) {
	if err := cdp.WaitForPort(ctx, host, port); err != nil {
		return nil, nil, err
	}
	targets, err := cdp.ListTargets(ctx, host, port)
	if err != nil {
		return nil, nil, err
	}
	page, err := cdp.FindPageTarget(targets)
	if err != nil {
		return nil, nil, err
	}

	conn, err := cdp.Dial(ctx, page.WebSocketDebuggerURL, logger)
	if err != nil {
		return nil, nil, err
	}

	session := target.NewDebugSession(conn, target.Options{
		ServerRoot: viper.GetString("server-root"),
		WebRoot:    viper.GetString("web-root"),
		Logger:     logger,
		Sink:       sink,
	})
	if err := session.Activate(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if url != "" {
		if err := session.JumpToPage(ctx, url); err != nil {
			logger.Printf("navigate to %s: %v", url, err)
		}
	}
	return session, conn, nil
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
