package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

const shellPrompt = "qav> "

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively against one session",
		Long: "Read commands line by line and run them against the same in-memory session, so " +
			"segments ingested earlier stay available. Quoting follows shell rules. Type exit to leave.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShell(cmd, cmd.InOrStdin())
		},
	}
}

func (a *app) runShell(cmd *cobra.Command, in io.Reader) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(errOut, shellPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(errOut)
			return scanner.Err()
		}

		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch strings.ToLower(args[0]) {
		case "exit", "quit":
			return nil
		}

		line := &cobra.Command{
			Use:           "qav",
			SilenceUsage:  true,
			SilenceErrors: true,
		}
		line.CompletionOptions.DisableDefaultCmd = true
		addCommands(line, a)
		line.SetArgs(args)
		line.SetOut(out)
		line.SetErr(errOut)

		if err := line.ExecuteContext(cmd.Context()); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}
