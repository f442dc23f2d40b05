package debug

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var continueCmd = &cobra.Command{
	Use:     "continue",
	Short:   "run until the next breakpoint",
	Aliases: []string{"c"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return Target.Continue(context.Background(), target.FocusedThread)
	},
}

func init() {
	debugRootCmd.AddCommand(continueCmd)
}
