package command

import (
	"flag"
	"io"
)

///////////////////////////////////////////////////////////////////////////////////////////////////
//
// Represents a nodestat verb: report, daemon, etc.

type Command interface {
	// Add all arguments including shared arguments
	Add(fs *flag.FlagSet)

	// One line per summary line to print for -h
	Summary() []string

	// Validate all arguments including shared arguments.  This must catch configuration
	// conflicts before any scheduler query is issued.
	Validate() error
}

// A command that runs to completion and writes its report to stdout.

type SimpleCommand interface {
	Command
	Perform(stdout, stderr io.Writer) error
}

// Optional: commands that support -cpuprofile.

type ProfilingCommand interface {
	CpuProfileFile() string
}
