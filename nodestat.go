// `nodestat` -- Print per-node status for a cluster, correlating nodes with running jobs and
// flagging anomalies.
//
// Run `nodestat help` for brief help.

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"nodestat/command"
	"nodestat/common"
	"nodestat/daemon"
	"nodestat/report"
	"nodestat/status"
)

func main() {
	err := nodestat()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func nodestat() error {
	anyCmd := commandLine()

	if pc, ok := anyCmd.(command.ProfilingCommand); ok && pc.CpuProfileFile() != "" {
		f, err := os.Create(pc.CpuProfileFile())
		if err != nil {
			return fmt.Errorf("Failed to create profile\n%w", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	switch cmd := anyCmd.(type) {
	case *daemon.DaemonCommand:
		return cmd.RunDaemon(os.Stderr)
	case command.SimpleCommand:
		return cmd.Perform(os.Stdout, os.Stderr)
	default:
		panic("Unexpected")
	}
}

func commandLine() command.Command {
	out := flag.CommandLine.Output()

	// The report verb is the default: `nodestat -f` works like `nodestat report -f`.
	verb := "report"
	rest := os.Args[1:]
	if len(os.Args) >= 2 && os.Args[1] != "" && os.Args[1][0] != '-' {
		verb = os.Args[1]
		rest = os.Args[2:]
	}

	var cmd command.Command
	switch verb {
	case "help":
		fmt.Fprintf(out, "Usage: %s [command] [options]\n", os.Args[0])
		fmt.Fprintf(out, "Commands:\n")
		fmt.Fprintf(out, "  report   - print the flagged node report (default)\n")
		fmt.Fprintf(out, "  daemon   - serve the node report over HTTP\n")
		fmt.Fprintf(out, "  version  - print information about the program\n")
		fmt.Fprintf(out, "  help     - print this message\n")
		fmt.Fprintf(out, "Each command accepts -h to further explain options.\n")
		os.Exit(0)
	case "report":
		cmd = new(report.ReportCommand)
	case "daemon":
		cmd = new(daemon.DaemonCommand)
	case "version":
		fmt.Printf("nodestat version(%s)\n", common.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(out, "Unknown operation %s, try `nodestat help`\n", verb)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cmd.Add(fs)

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s %s [options]\n\n", os.Args[0], verb)
		for _, s := range cmd.Summary() {
			fmt.Fprintln(out, "  ", s)
		}
		fmt.Fprintln(out, "\nOptions:")
		fs.PrintDefaults()
	}
	fs.Parse(rest)

	if len(fs.Args()) > 0 {
		fmt.Fprintf(out, "Rest arguments not accepted by `%s`.\n", verb)
		os.Exit(2)
	}

	err := cmd.Validate()
	if err != nil {
		fmt.Fprintf(out, "Bad arguments, try -h\n%v\n", err.Error())
		os.Exit(2)
	}

	if vc, ok := cmd.(interface{ VerboseFlag() bool }); ok && vc.VerboseFlag() {
		common.Log.LowerLevelTo(status.LogLevelInfo)
	}

	return cmd
}
