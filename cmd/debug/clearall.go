package debug

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearallCmd = &cobra.Command{
	Use:     "clearall [file]",
	Short:   "remove all breakpoints, or all in one file",
	Aliases: []string{"D"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) != 0 {
			path = args[0]
		}
		removed := Target.RemoveAllBreakPoints(context.Background(), path)
		fmt.Printf("removed %d breakpoints\n", len(removed))
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(clearallCmd)
}
