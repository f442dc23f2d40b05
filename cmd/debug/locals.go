package debug

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/symbol"
	"github.com/hitzhangjie/wadbg/pkg/target"
)

var localsCmd = &cobra.Command{
	Use:     "locals [groupid]",
	Short:   "list local variable names and types",
	Aliases: []string{"il"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := parseGroupID(args)
		if err != nil {
			return err
		}
		names, err := Target.ListVariable(target.FocusedThread, groupID)
		if err != nil {
			return err
		}
		printVariableNames(names)
		return nil
	},
}

var globalsCmd = &cobra.Command{
	Use:     "globals [groupid]",
	Short:   "list global variable names and types",
	Aliases: []string{"ig"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := parseGroupID(args)
		if err != nil {
			return err
		}
		names, err := Target.ListGlobalVariable(target.FocusedThread, groupID)
		if err != nil {
			return err
		}
		printVariableNames(names)
		return nil
	},
}

func parseGroupID(args []string) (int32, error) {
	if len(args) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid group id: %v", err)
	}
	return int32(v), nil
}

func printVariableNames(names []symbol.VariableName) {
	for _, n := range names {
		if n.ChildGroupID != 0 {
			fmt.Printf("%s %s (group %d)\n", n.TypeName, n.DisplayName, n.ChildGroupID)
			continue
		}
		fmt.Printf("%s %s\n", n.TypeName, n.DisplayName)
	}
}

func init() {
	debugRootCmd.AddCommand(localsCmd)
	debugRootCmd.AddCommand(globalsCmd)
}
