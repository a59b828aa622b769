// Command dgc signs, verifies and archives HC1 health certificate tokens.
//
//	dgc sign   -c cert.pem -p key.pem < claims.json > token.txt
//	dgc verify -c cert.pem < token.txt
//	dgc inspect < token.txt
//	dgc archive put --archive-dir DIR < token.txt
//	dgc archive get --archive-dir DIR <cid>
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

// usageError marks failures caused by how the command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{fmt.Errorf(format, a...)}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	root := newRootCommand(stdin, out, errOut)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(errOut, "dgc: %v\n", err)

	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

func newRootCommand(stdin io.Reader, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "dgc",
		Short:         "Encode and verify HC1 health certificates",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageError{errors.New("a subcommand is required (see dgc --help)")}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	s := &streams{in: stdin, out: out, errOut: errOut}
	root.AddCommand(
		newSignCommand(s),
		newVerifyCommand(s),
		newInspectCommand(s),
		newArchiveCommand(s),
		&cobra.Command{
			Use:   "version",
			Short: "Print the dgc version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(out, version)
			},
		},
	)
	return root
}

type streams struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// readInput reads all of stdin, hinting on stderr when stdin is a terminal
// so an interactive user is not left staring at a silent prompt.
func (s *streams) readInput(what string) ([]byte, error) {
	if f, ok := s.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(s.errOut, "reading %s from stdin (end with Ctrl-D)\n", what)
	}
	b, err := io.ReadAll(s.in)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return b, nil
}

// readToken reads a token from stdin. Surrounding whitespace is dropped since
// tokens are usually piped with a trailing newline.
func (s *streams) readToken() (string, error) {
	b, err := s.readInput("token")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func argsExactly(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("%s takes %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}
