package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	noColor    bool
	verbose    bool
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			printError(root.ErrOrStderr(), "%v", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "doclens",
		Short: "Ask questions about PDF documents through a document QA backend",
		Long: `doclens stages PDF files, uploads them to a document QA backend as one
session, and asks questions about them.

Examples:
  doclens health
  doclens ask --file ./report.pdf "What are the key findings?"
  doclens chat ./a.pdf ./b.pdf
  doclens serve
  doclens history list`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	root.AddCommand(
		newHealthCmd(flags),
		newAskCmd(flags),
		newChatCmd(flags),
		newServeCmd(flags),
		newHistoryCmd(flags),
	)
	root.SetVersionTemplate(fmt.Sprintf("doclens version %s\n", version))
	return root
}
