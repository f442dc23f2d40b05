package debug

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:     "clear <breakpoint no.>",
	Short:   "remove the breakpoint with the given number",
	Aliases: []string{"d", "delete"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("need a breakpoint number")
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid breakpoint number: %v", err)
		}

		if err := Target.RemoveBreakPoint(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("breakpoint %d removed\n", id)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(clearCmd)
}
