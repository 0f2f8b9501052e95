package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/batch-eval/internal/config"
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errRowsFailed) {
			osExit(1)
			return
		}
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "batch-eval",
		Short:         "Run batch evaluations over generated text datasets",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newListCmd(st))
	root.AddCommand(newShowCmd(st))
	return root
}
