// Per-node anomaly evaluation.
//
// Each node gets four independent flags, each with its own severity; they are orthogonal and are
// never merged into a single severity.  A node whose most recent job is younger than the grace
// period gets no flags at all: the scheduler's reported load is a trailing average wider than the
// job's runtime, so flagging would be a false positive.

package health

import (
	"strings"

	"nodestat/correlate"
	"nodestat/snapshot"
)

type Severity int

const (
	None Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "none"
	}
}

// Flags are the four independent anomaly signals for one node.

type Flags struct {
	State  Severity
	Load   Severity
	Cores  Severity
	Memory Severity
}

type Thresholds struct {
	// Tolerated deviation from the ideal load interval, critical resp warning.  LoadDelta1 must
	// be greater than LoadDelta2.
	LoadDelta1 float64
	LoadDelta2 float64

	// Free-memory fractions of total memory, critical resp warning.  MemFrac1 must be less than
	// MemFrac2.
	MemFrac1 float64
	MemFrac2 float64

	// Nodes whose most recent job is younger than this get no flags.
	GraceSeconds int64

	// Administrative states that are flagged critical.
	ProblemStates map[string]bool
}

const defaultProblemStates = "drain,drng,down,error,resv,maint,boot,comp"

func DefaultThresholds() Thresholds {
	return Thresholds{
		LoadDelta1:    2.0,
		LoadDelta2:    0.5,
		MemFrac1:      0.1,
		MemFrac2:      0.2,
		GraceSeconds:  300,
		ProblemStates: StateSet(defaultProblemStates),
	}
}

// StateSet parses a comma-separated state list into a membership set.

func StateSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, state := range strings.Split(s, ",") {
		if state = strings.TrimSpace(state); state != "" {
			set[state] = true
		}
	}
	return set
}

// Evaluate computes the four flags for one node.  agg may be nil for a node that runs no jobs;
// such a node is evaluated with job count zero and no grace-period exception.

func Evaluate(n *snapshot.NodeRecord, agg *correlate.Aggregate, t Thresholds) Flags {
	if agg != nil && agg.HasMinElapsed && agg.MinElapsedSec < t.GraceSeconds {
		return Flags{}
	}

	var f Flags

	if t.ProblemStates[n.State] {
		f.State = Critical
	}

	// The ideal load interval widens when a physical core carries several hardware threads: any
	// load between allocated/threadsPerCore and allocated is acceptable.
	idealMax := float64(n.AllocCores)
	idealMin := idealMax
	if n.ThreadsPerCore > 1 {
		idealMin = idealMax / float64(n.ThreadsPerCore)
	}
	switch {
	case n.CpuLoad < idealMin-t.LoadDelta1 || n.CpuLoad > idealMax+t.LoadDelta1:
		f.Load = Critical
	case n.CpuLoad < idealMin-t.LoadDelta2 || n.CpuLoad > idealMax+t.LoadDelta2:
		f.Load = Warning
	}

	// A job occupies at least one core-equivalent slot, so more jobs than allocated cores signals
	// an inconsistency.  A multi-node job sharing a partially-allocated node is a softer anomaly.
	jobCount := 0
	multiNodeJobs := 0
	if agg != nil {
		jobCount = agg.JobCount
		multiNodeJobs = agg.MultiNodeJobs
	}
	switch {
	case jobCount > int(n.AllocCores):
		f.Cores = Critical
	case n.State == "mix" && multiNodeJobs > 0:
		f.Cores = Warning
	}

	switch {
	case float64(n.FreeMemMB) < float64(n.MemMB)*t.MemFrac1:
		f.Memory = Critical
	case float64(n.FreeMemMB) < float64(n.MemMB)*t.MemFrac2:
		f.Memory = Warning
	}

	return f
}

// Interest counts the flags that make a node worth surfacing.  Critical flags always count;
// warnings count only in the broader include-warnings mode.

func Interest(f Flags, includeWarnings bool) int {
	n := 0
	for _, s := range []Severity{f.State, f.Load, f.Cores, f.Memory} {
		if s == Critical || (s == Warning && includeWarnings) {
			n++
		}
	}
	return n
}
