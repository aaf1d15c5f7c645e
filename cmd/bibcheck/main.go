// Command bibcheck validates a .bib file offline with the same rules the
// server applies to uploads.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitSuccess   = 0
	ExitError     = 1 // invalid arguments or unreadable file
	ExitDataError = 3 // file refused by validation or parsing
)

var (
	outputFormat string
	maxBytes     int64
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("error:", err)
		if isDataError(err) {
			return ExitDataError
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bibcheck <file.bib>",
		Short: "Validate and parse a BibTeX file",
		Long: `bibcheck validates a BibTeX file and prints the parsed publications.

Examples:
  bibcheck refs.bib
  bibcheck --format text refs.bib
  bibcheck --format yaml --max-bytes 1048576 refs.bib`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cmd.OutOrStdout(), args[0], outputFormat, maxBytes)
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json, yaml, text or summary")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 10*1024*1024, "Largest accepted file size in bytes")
	return cmd
}
