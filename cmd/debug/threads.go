package debug

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "list debugged threads",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupThreads,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		focused := Target.FocusedThreadID()
		for _, info := range Target.GetThreadList() {
			marker := " "
			if info.ID == focused {
				marker = "*"
			}
			fmt.Printf("%s thread %d (%s)\n", marker, info.ID, info.State)
		}
		return nil
	},
}

var threadCmd = &cobra.Command{
	Use:     "thread <id>",
	Short:   "focus a thread",
	Aliases: []string{"t"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupThreads,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("need a thread id")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid thread id: %v", err)
		}
		if err := Target.SetFocusedThread(id); err != nil {
			return err
		}
		fmt.Printf("focused thread %d\n", id)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(threadsCmd)
	debugRootCmd.AddCommand(threadCmd)
}
