package debug

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var stepoutCmd = &cobra.Command{
	Use:     "stepout",
	Short:   "run until the current function returns",
	Aliases: []string{"u", "finish"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return Target.StepOut(context.Background(), target.FocusedThread)
	},
}

func init() {
	debugRootCmd.AddCommand(stepoutCmd)
}
