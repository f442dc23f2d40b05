package debug

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var stepCmd = &cobra.Command{
	Use:     "step",
	Short:   "step into the next call",
	Aliases: []string{"s"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return Target.StepIn(context.Background(), target.FocusedThread)
	},
}

func init() {
	debugRootCmd.AddCommand(stepCmd)
}
