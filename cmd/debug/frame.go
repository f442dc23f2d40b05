package debug

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var frameCmd = &cobra.Command{
	Use:     "frame <n>",
	Short:   "focus a stack frame for variable commands",
	Aliases: []string{"f"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("need a frame index")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid frame index: %v", err)
		}
		if err := Target.SetFocusedFrame(target.FocusedThread, index); err != nil {
			return err
		}
		fmt.Printf("focused frame #%d\n", index)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(frameCmd)
}
