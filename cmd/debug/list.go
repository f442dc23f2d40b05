package debug

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/wadbg/pkg/target"
)

var listCmd = &cobra.Command{
	Use:     "list [file:lineno]",
	Short:   "show source around the current line",
	Aliases: []string{"l"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			file   string
			lineno int
			err    error
		)

		if len(args) != 0 {
			file, lineno, err = target.ParseFileLine(args[0])
			if err != nil {
				return err
			}
		} else {
			file, lineno, err = Target.ShowLine(target.FocusedThread)
			if err != nil {
				return err
			}
		}

		return listFileLines(file, lineno, 10)
	},
}

// listFileLines prints up to rng lines on either side of lineno, marking the
// current line and expanding tabs to four spaces.
func listFileLines(file string, lineno, rng int) error {
	lines, offset, err := listFile(file, lineno, rng)
	if err != nil {
		return fmt.Errorf("list file err: %v", err)
	}

	// use 1-based counter
	idx := offset + 1
	for _, ln := range lines {
		ln = strings.ReplaceAll(ln, "\t", "    ")
		if idx != lineno {
			fmt.Printf("%-4s\t%d\t%s\n", "", idx, ln)
		} else {
			fmt.Printf("%-4s\t%d\t%s\n", "->", idx, ln)
		}
		idx++
	}

	return nil
}

// listFile returns the lines around lineno; offset is the zero-based index
// of the first returned line.
func listFile(file string, lineno, rng int) (lines []string, offset int, err error) {
	dat, err := os.ReadFile(file)
	if err != nil {
		err = fmt.Errorf("read file err: %v", err)
		return
	}

	raw := strings.Split(string(dat), "\n")
	count := len(raw)

	// lineno is 1-based, raw is 0-based
	begin := lineno - rng - 1
	if begin < 0 {
		begin = 0
	}
	if begin > count {
		return
	}

	end := lineno + rng
	if end > count {
		end = count
	}

	return raw[begin:end], begin, nil
}

func init() {
	debugRootCmd.AddCommand(listCmd)
}
