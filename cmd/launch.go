package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitzhangjie/wadbg/cmd/debug"
)

// launchCmd starts a headless Chrome compatible runtime with remote
// debugging enabled, then behaves like connect.
var launchCmd = &cobra.Command{
	Use:   "launch [url]",
	Short: "launch a browser with remote debugging and debug it",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := ""
		if len(args) != 0 {
			url = args[0]
		}

		host, port, err := splitRemote(viper.GetString("remote"))
		if err != nil {
			return err
		}

		binary, _ := cmd.Flags().GetString("browser")
		headless, _ := cmd.Flags().GetBool("headless")

		browserArgs := []string{
			fmt.Sprintf("--remote-debugging-port=%d", port),
			"--no-first-run",
			"about:blank",
		}
		if headless {
			browserArgs = append([]string{"--headless=new"}, browserArgs...)
		}
		browser := exec.Command(binary, browserArgs...)
		browser.Stderr = nil
		if err := browser.Start(); err != nil {
			return fmt.Errorf("start %s: %w", binary, err)
		}
		defer browser.Process.Kill()

		logger := log.New(os.Stderr, "wadbg ", log.LstdFlags)
		session, conn, err := dialAndActivate(context.Background(), host, port, url, debug.ConsoleSink{}, logger)
		if err != nil {
			return err
		}
		debug.Target = session

		shell := debug.NewDebugShell()
		debug.CurrentSession = shell
		go func() {
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

func init() {
	launchCmd.Flags().String("browser", "chromium", "browser binary to launch")
	launchCmd.Flags().Bool("headless", true, "run the browser headless")
	rootCmd.AddCommand(launchCmd)
}
