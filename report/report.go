// `nodestat report` - one status line per compute node, with anomaly flags.

package report

import (
	"errors"
	"flag"
	"fmt"
	"os/user"
	"strconv"
	"strings"

	ini "github.com/lars-t-hansen/ini"

	"nodestat/command"
	"nodestat/common"
	"nodestat/health"
	"nodestat/snapshot"
)

type ReportCommand struct {
	command.DevArgs
	command.VerboseArgs

	// Selection predicates
	Partitions    string
	User          string
	Group         string
	Nodes         string
	ExcludeStates string

	// Inclusion modes.  By default only nodes with at least one critical flag are printed;
	// -f also counts warning-level flags; -a prints everything.  The absolute free-memory
	// filters select on memory instead of flags and are mutually exclusive with -f and with
	// each other.
	IncludeWarnings bool
	AllNodes        bool
	FreeMemBelow    int
	FreeMemAtLeast  int

	// Output shape
	PerPartition bool
	ShowGres     bool
	ShowName     bool
	ShowStart    bool
	ShowEnd      bool
	ShowElapsed  bool
	NoColor      bool

	// Threshold override; the rest come from ~/.nodestat or built-in defaults
	Grace string

	// Substituted by the daemon and by tests; Perform defaults it to the scheduler-backed
	// source.
	Source snapshot.Source

	partitionSet map[string]bool
	excludeSet   map[string]bool
	thresholds   health.Thresholds
}

func (rc *ReportCommand) Add(fs *flag.FlagSet) {
	rc.DevArgs.Add(fs)
	rc.VerboseArgs.Add(fs)
	fs.StringVar(&rc.Partitions, "p", "", "Select nodes in these `partitions` (comma-separated)")
	fs.StringVar(&rc.User, "u", "", "Select nodes running jobs of this `user`")
	fs.StringVar(&rc.Group, "g", "", "Select nodes running jobs of this `group`")
	fs.StringVar(&rc.Nodes, "w", "", "Select nodes in this `nodelist` expression")
	fs.StringVar(&rc.ExcludeStates, "exclude-states", "",
		"Exclude nodes in these `states` (comma-separated, canonical state names)")
	fs.BoolVar(&rc.IncludeWarnings, "f", false,
		"Surface warning-level flags too (default: only critical flags select nodes)")
	fs.BoolVar(&rc.AllNodes, "a", false, "Print all selected nodes, flagged or not")
	fs.IntVar(&rc.FreeMemBelow, "m", -1, "Print nodes with free memory below `MB`")
	fs.IntVar(&rc.FreeMemAtLeast, "M", -1, "Print nodes with free memory of at least `MB`")
	fs.BoolVar(&rc.PerPartition, "per-partition", false,
		"Print one line per node per partition instead of unique nodes")
	fs.BoolVar(&rc.ShowGres, "G", false, "Print the generic-resources column")
	fs.BoolVar(&rc.ShowName, "N", false, "Print the job name in the job list")
	fs.BoolVar(&rc.ShowStart, "S", false, "Print the job start time in the job list")
	fs.BoolVar(&rc.ShowEnd, "E", false, "Print the job end time in the job list")
	fs.BoolVar(&rc.ShowElapsed, "T", false, "Print the job elapsed time in the job list")
	fs.BoolVar(&rc.NoColor, "nocolor", false, "Suppress ANSI colors in the output")
	fs.StringVar(&rc.Grace, "grace", "",
		"Suppress flags for nodes whose most recent job is younger than `seconds`")
}

func (rc *ReportCommand) Summary() []string {
	return []string{
		"Print one line per compute node, correlating the node snapshot with the",
		"running jobs on the node and flagging nodes with anomalous state, CPU load,",
		"job/core ratio, or free memory.",
	}
}

// Validate catches configuration conflicts and selection misses before any scheduler query is
// issued; wasted queries annoy both the operator and the scheduler.

func (rc *ReportCommand) Validate() error {
	var e1, e2, e3, e4, e5, e6 error
	e1 = rc.DevArgs.Validate()
	e2 = rc.VerboseArgs.Validate()

	memFilter := rc.FreeMemBelow >= 0 || rc.FreeMemAtLeast >= 0
	switch {
	case rc.FreeMemBelow >= 0 && rc.FreeMemAtLeast >= 0:
		e3 = errors.New("-m and -M are mutually exclusive")
	case rc.IncludeWarnings && memFilter:
		e3 = errors.New("-f cannot be combined with -m or -M")
	}

	if rc.Partitions != "" {
		rc.partitionSet = commaSet(rc.Partitions)
	}
	if rc.ExcludeStates != "" {
		rc.excludeSet = commaSet(rc.ExcludeStates)
	}

	rc.thresholds, e4 = resolveThresholds(rc.Grace)

	if rc.User != "" {
		if _, err := user.Lookup(rc.User); err != nil {
			e5 = fmt.Errorf("No such user: %s", rc.User)
		}
	}
	if rc.Group != "" {
		if _, err := user.LookupGroup(rc.Group); err != nil {
			e6 = fmt.Errorf("No such group: %s", rc.Group)
		}
	}

	return errors.Join(e1, e2, e3, e4, e5, e6)
}

// Built-in defaults, overridden by the [thresholds] and [states] sections of ~/.nodestat,
// overridden in turn by command line flags (currently -grace only).

func resolveThresholds(graceFlag string) (health.Thresholds, error) {
	t := health.DefaultThresholds()

	var err error
	applyFloat := func(dst *float64, name string, f *ini.Field) {
		var s string
		if common.ApplyDefault(&s, f) {
			v, e := strconv.ParseFloat(s, 64)
			if e != nil {
				err = errors.Join(err, fmt.Errorf("Bad %s value %q in defaults file", name, s))
				return
			}
			*dst = v
		}
	}
	applyFloat(&t.LoadDelta1, "cpu-load-delta1", common.ThresholdCpuLoadDelta1)
	applyFloat(&t.LoadDelta2, "cpu-load-delta2", common.ThresholdCpuLoadDelta2)
	applyFloat(&t.MemFrac1, "free-mem-frac1", common.ThresholdFreeMemFrac1)
	applyFloat(&t.MemFrac2, "free-mem-frac2", common.ThresholdFreeMemFrac2)

	grace := graceFlag
	if grace == "" {
		common.ApplyDefault(&grace, common.ThresholdGracePeriod)
	}
	if grace != "" {
		n, e := strconv.ParseInt(grace, 10, 64)
		if e != nil || n < 0 {
			err = errors.Join(err, fmt.Errorf("Bad grace-period value %q", grace))
		} else {
			t.GraceSeconds = n
		}
	}

	var problem string
	if common.ApplyDefault(&problem, common.StatesProblem) {
		t.ProblemStates = health.StateSet(problem)
	}

	err = errors.Join(err, checkThresholds(t))
	return t, err
}

func checkThresholds(t health.Thresholds) error {
	var e1, e2 error
	if t.LoadDelta1 <= t.LoadDelta2 {
		e1 = fmt.Errorf(
			"cpu-load-delta1 (%g) must be greater than cpu-load-delta2 (%g)",
			t.LoadDelta1, t.LoadDelta2)
	}
	if t.MemFrac1 >= t.MemFrac2 {
		e2 = fmt.Errorf(
			"free-mem-frac1 (%g) must be less than free-mem-frac2 (%g)",
			t.MemFrac1, t.MemFrac2)
	}
	return errors.Join(e1, e2)
}

func commaSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			set[x] = true
		}
	}
	return set
}
