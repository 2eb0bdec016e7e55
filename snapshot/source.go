package snapshot

import (
	"fmt"
	"strings"

	"nodestat/process"
)

// Source produces the two raw snapshot feeds and expands compressed node-list expressions.  The
// command-backed implementation below talks to the scheduler; tests substitute their own.

type Source interface {
	Nodes() (string, error)
	Jobs() (string, error)
	ExpandNodeList(expr string) ([]string, error)
}

// Output formats for the scheduler queries.  These must stay in sync with the field lists
// documented on ParseNodeLines and ParseJobLines.

const (
	sinfoProgram    = "sinfo"
	squeueProgram   = "squeue"
	scontrolProgram = "scontrol"

	nodeFormat = "%N %P %C %O %m %e %t %Z %G"
	jobFormat  = "%T %A %u %g %N %S %e %M %P %D %j"
)

// CommandSource queries the scheduler with one subprocess per call.  Node-list expansions are
// memoized for the duration of the run since many jobs share the same expression; the cache dies
// with the run.

type CommandSource struct {
	expansions map[string][]string
}

func NewCommandSource() *CommandSource {
	return &CommandSource{expansions: make(map[string][]string)}
}

func (cs *CommandSource) Nodes() (string, error) {
	return runQuery(sinfoProgram, []string{"-h", "-N", "-o", nodeFormat})
}

func (cs *CommandSource) Jobs() (string, error) {
	return runQuery(squeueProgram, []string{"-h", "-t", "RUNNING", "-o", jobFormat})
}

// A node-list expression with neither a bracket nor a comma is a single hostname; everything else
// goes to the scheduler's own expander, one hostname per output line.  The order of the resulting
// hosts is insignificant.

func (cs *CommandSource) ExpandNodeList(expr string) ([]string, error) {
	if !strings.ContainsAny(expr, "[,") {
		return []string{expr}, nil
	}
	if hosts, found := cs.expansions[expr]; found {
		return hosts, nil
	}
	stdout, err := runQuery(scontrolProgram, []string{"show", "hostnames", expr})
	if err != nil {
		return nil, err
	}
	hosts := nonEmptyLines(stdout)
	cs.expansions[expr] = hosts
	return hosts, nil
}

func runQuery(program string, arguments []string) (string, error) {
	stdout, stderr, err := process.RunSubprocess(program, arguments)
	if err != nil {
		if stderr != "" {
			return "", fmt.Errorf("Scheduler query failed: %s: %w", strings.TrimSpace(stderr), err)
		}
		return "", fmt.Errorf("Scheduler query failed: %w", err)
	}
	return stdout, nil
}
