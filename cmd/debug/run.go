package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run <url>",
	Short:   "navigate the page to a url",
	Aliases: []string{"r"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("need a url")
		}
		if err := Target.JumpToPage(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("navigating to %s\n", args[0])
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(runCmd)
}
