package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var breakCmd = &cobra.Command{
	Use:   "break <file:lineno>",
	Short: "add a breakpoint at a source line",
	Long: `Add a breakpoint at a source line, e.g. break Main.cpp:4.

The file may be a bare name or any path suffix of the compiler emitted
path. The breakpoint stays pending until a module covering the location is
loaded.`,
	Aliases: []string{"b", "breakpoint"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("need one location argument")
		}

		file, lineno, err := target.ParseFileLine(args[0])
		if err != nil {
			return err
		}

		rb, err := Target.SetBreakPoint(context.Background(), file, lineno, 0)
		if err != nil {
			return err
		}
		if rb.Verified {
			fmt.Printf("breakpoint %d at %s:%d\n", rb.ID, rb.File, rb.Line)
		} else {
			fmt.Printf("breakpoint %d pending at %s:%d\n", rb.ID, rb.File, rb.Line)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(breakCmd)
}
