package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var executeFunc = execute

func main() {
	runMain(os.Args, os.Stdout, os.Stderr, os.Exit)
}

// exitCodeError carries a process exit code without printing anything.
type exitCodeError struct {
	Code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// execute runs the CLI with the provided args and output writers.
func execute(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.Version = Version
	if len(args) > 1 {
		cmd.SetArgs(args[1:])
	} else {
		cmd.SetArgs(nil)
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

// runMain executes the CLI, exiting on errors.
func runMain(args []string, stdout, stderr io.Writer, exit func(int)) {
	err := executeFunc(args, stdout, stderr)
	if err == nil {
		return
	}

	var codeErr *exitCodeError
	if errors.As(err, &codeErr) {
		exit(codeErr.Code)
		return
	}
	_, _ = fmt.Fprintln(stderr, "Error:", err)
	exit(1)
}
