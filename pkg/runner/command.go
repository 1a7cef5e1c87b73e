package runner

import "strings"

// Command describes one process invocation. It is run without a shell.
type Command struct {
	Path string
	Args []string
	Dir  string

	// Env is appended to the current environment.
	Env []string
}

// String renders the command line for logs and job records.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Path)
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}
