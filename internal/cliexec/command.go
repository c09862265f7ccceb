// Package cliexec invokes the code-generating CLI agent as a
// subprocess: building its argv from a command template file and
// parsing the newline-delimited JSON it writes to stdout.
package cliexec

import (
	"os"
	"strconv"
	"strings"

	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// Options configures argv assembly for one invocation.
type Options struct {
	CLIPath         string
	Model           string
	Verbose         bool
	MaxTurns        int
	SkipPermissions bool
}

// BuildCommand reads commandFile, substitutes its placeholders with
// args, and assembles the argv that invokes the CLI agent. The prompt
// text itself is returned separately since it is delivered on stdin,
// never as a positional argument.
func BuildCommand(commandFile string, args []string, opts Options) (argv []string, promptText string, err error) {
	raw, readErr := os.ReadFile(commandFile)
	if readErr != nil {
		return nil, "", &woerrors.ValidationError{Field: "command_file", Message: readErr.Error()}
	}

	promptText = substitutePlaceholders(string(raw), args)

	argv = []string{opts.CLIPath, "--print", "--output-format", "stream-json"}
	if opts.Verbose {
		argv = append(argv, "--verbose")
	}
	argv = append(argv, "--model", opts.Model)
	if opts.MaxTurns > 0 {
		argv = append(argv, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.SkipPermissions {
		argv = append(argv, "--dangerously-skip-permissions")
	}

	return argv, promptText, nil
}

// substitutePlaceholders replaces $ARGUMENTS with the first arg (or a
// comma join of all args) and $1, $2, … with positional args.
// Placeholders with no corresponding arg are left untouched.
func substitutePlaceholders(text string, args []string) string {
	out := text
	if strings.Contains(out, "$ARGUMENTS") {
		var joined string
		if len(args) > 0 {
			joined = args[0]
		}
		if len(args) > 1 {
			joined = strings.Join(args, ", ")
		}
		out = strings.ReplaceAll(out, "$ARGUMENTS", joined)
	}
	for i, a := range args {
		placeholder := "$" + strconv.Itoa(i+1)
		out = strings.ReplaceAll(out, placeholder, a)
	}
	return out
}

// CommandLoader resolves a command name to its template file path
// under a fixed commands directory.
type CommandLoader struct {
	CommandsDir string
}

// Resolve returns the path to "<commands_dir>/<name>.md", failing with
// a structured "command not found" error if it does not exist.
func (l CommandLoader) Resolve(name string) (string, error) {
	path := l.CommandsDir + "/" + name + ".md"
	if _, err := os.Stat(path); err != nil {
		return "", &woerrors.CommandNotFoundError{CommandName: name, Path: path}
	}
	return path, nil
}
