package debug

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var backtraceCmd = &cobra.Command{
	Use:     "bt",
	Short:   "print the call stack",
	Aliases: []string{"backtrace"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		frames, err := Target.GetStackFrames(target.FocusedThread)
		if err != nil {
			return err
		}
		for _, f := range frames {
			fmt.Printf("#%d %s at %s:%d (instruction %#x)\n",
				f.Index, f.FunctionName, f.File, f.Line, f.Instruction)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(backtraceCmd)
}
