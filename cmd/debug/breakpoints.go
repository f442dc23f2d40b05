package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var breaksCmd = &cobra.Command{
	Use:     "breaks",
	Short:   "list all breakpoints",
	Aliases: []string{"bs", "breakpoints"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := Target.GetBreakPointsList("")
		if err != nil {
			return err
		}
		for _, rb := range list {
			state := "pending"
			if rb.Verified {
				state = "verified"
			}
			fmt.Printf("breakpoint[%d] %s:%d (%s)\n", rb.ID, rb.File, rb.Line, state)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(breaksCmd)
}
