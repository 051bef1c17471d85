// Package core holds small helpers shared by the pipeline stages.
package core

import (
	"regexp"
	"strings"
)

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// ShellEscapePosix returns s as a single POSIX shell token.
// Tokens made only of safe characters are returned bare; anything else is
// single-quoted, with embedded single quotes spliced as '"'"'.
//
//	abc -> abc
//	a b -> 'a b'
//	a'b -> 'a'"'"'b'
//	""  -> ''
func ShellEscapePosix(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// CommandLine renders name and args as a copy-pasteable shell command, used
// when announcing delegated commands and in error hints.
func CommandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscapePosix(name))
	for _, a := range args {
		parts = append(parts, ShellEscapePosix(a))
	}
	return strings.Join(parts, " ")
}

// InDir prefixes a command line with a cd into dir.
// example: ("/tmp/app", "docker compose up") -> "cd /tmp/app && docker compose up"
func InDir(dir, commandLine string) string {
	if dir == "" {
		return commandLine
	}
	return "cd " + ShellEscapePosix(dir) + " && " + commandLine
}
