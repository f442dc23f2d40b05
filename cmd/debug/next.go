package debug

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var nextCmd = &cobra.Command{
	Use:     "next",
	Short:   "step over one source line",
	Aliases: []string{"n"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return Target.StepOver(context.Background(), target.FocusedThread)
	},
}

func init() {
	debugRootCmd.AddCommand(nextCmd)
}
