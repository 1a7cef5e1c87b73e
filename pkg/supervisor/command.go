package supervisor

import "github.com/jdziat/firmware-jobs/pkg/runner"

// Invocation is the fixed prefix of every analysis command.
type Invocation struct {
	// ToolDir is the working directory the tool is started from.
	ToolDir string
	// Command is the tool entry point, relative to ToolDir or absolute.
	Command string
	// Sudo runs the tool through sudo.
	Sudo bool
}

// BuildCommand renders `<prefix> -f <image> -l <log dir> <flags...>`.
func BuildCommand(inv Invocation, image, logDir string, flags []string) runner.Command {
	args := make([]string, 0, len(flags)+5)
	path := inv.Command
	if inv.Sudo {
		args = append(args, inv.Command)
		path = "sudo"
	}
	args = append(args, "-f", image, "-l", logDir)
	args = append(args, flags...)
	return runner.Command{Path: path, Args: args, Dir: inv.ToolDir}
}
