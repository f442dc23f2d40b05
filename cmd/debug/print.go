package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var printCmd = &cobra.Command{
	Use:     "print <expr>",
	Short:   "evaluate a variable expression",
	Long:    "Evaluate a variable expression: a name, a dotted member path, or a `*`-prefixed dereference.",
	Aliases: []string{"p"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("need variable name")
		}
		value, err := Target.DumpVariable(context.Background(), target.FocusedThread, args[0])
		if err != nil {
			fmt.Printf("%s: %v\n", value, err)
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(printCmd)
}
