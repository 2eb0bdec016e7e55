// Typed ingest of the scheduler's point-in-time node and job snapshots.
//
// All parsing of the raw tabular feeds happens here, exactly once.  A line with the wrong field
// arity or an unparsable number fails the whole ingest: a partial snapshot would produce a
// materially wrong health picture downstream, so nothing is dropped silently.

package snapshot

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeRecord is one line of the node snapshot, one record per (node, partition) pair as reported
// by the node-oriented view.  State and partition markers are stripped during construction; the
// canonical tokens are what the rest of the pipeline sees.

type NodeRecord struct {
	Host             string
	Partition        string
	DefaultPartition bool
	AllocCores       uint32
	TotalCores       uint32
	CpuLoad          float64
	MemMB            uint64
	FreeMemMB        uint64
	State            string
	ThreadsPerCore   uint32
	Gres             string
}

// JobRecord is one currently-running job.  NodeList may denote a single host or a compressed
// multi-host set; Elapsed is the scheduler's formatted elapsed time and ElapsedSec its value in
// seconds.

type JobRecord struct {
	Id         uint32
	User       string
	Group      string
	NodeList   string
	Start      string
	End        string
	Elapsed    string
	ElapsedSec int64
	Partition  string
	NumNodes   uint32
	Name       string
}

// Info is the default per-job info text appended to a node's job list.

func (j *JobRecord) Info() string {
	return fmt.Sprintf(" %d %s", j.Id, j.User)
}

// The node-oriented view appends transient markers to the state token (not responding, powering
// up/down, maintenance pending, reboot pending, ...).  The canonical state is the token with any
// trailing run of markers stripped.

const stateMarkers = "*~#!%$@"

func CanonicalState(s string) string {
	return strings.TrimRight(s, stateMarkers)
}

// Fields per node line: hostname partition alloc/idle/other/total cpuload memMB freememMB state
// threadsPerCore gres.  The partition name carries a trailing "*" when it is the scheduler's
// default partition.

const nodeFieldCount = 9

func ParseNodeLines(text string) ([]*NodeRecord, error) {
	var records []*NodeRecord
	for lineNo, line := range nonEmptyLines(text) {
		fields := strings.Fields(line)
		if len(fields) != nodeFieldCount {
			return nil, fmt.Errorf(
				"Node snapshot line %d: expected %d fields, got %d: %s",
				lineNo+1, nodeFieldCount, len(fields), line)
		}
		partition, dflt := strings.CutSuffix(fields[1], "*")
		alloc, total, err := parseCoreUsage(fields[2])
		if err != nil {
			return nil, fmt.Errorf("Node snapshot line %d: %w", lineNo+1, err)
		}
		load, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("Node snapshot line %d: bad cpu load %q", lineNo+1, fields[3])
		}
		mem, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Node snapshot line %d: bad memory size %q", lineNo+1, fields[4])
		}
		free, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Node snapshot line %d: bad free memory %q", lineNo+1, fields[5])
		}
		tpc, err := strconv.ParseUint(fields[7], 10, 32)
		if err != nil {
			return nil, fmt.Errorf(
				"Node snapshot line %d: bad threads-per-core %q", lineNo+1, fields[7])
		}
		gres := fields[8]
		if gres == "(null)" {
			gres = ""
		}
		records = append(records, &NodeRecord{
			Host:             fields[0],
			Partition:        partition,
			DefaultPartition: dflt,
			AllocCores:       alloc,
			TotalCores:       total,
			CpuLoad:          load,
			MemMB:            mem,
			FreeMemMB:        free,
			State:            CanonicalState(fields[6]),
			ThreadsPerCore:   uint32(tpc),
			Gres:             gres,
		})
	}
	return records, nil
}

// The combined core-usage field is allocated/idle/other/total; we keep the first and the fourth.

func parseCoreUsage(s string) (alloc, total uint32, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return 0, 0, fmt.Errorf("bad core usage field %q", s)
	}
	a, e1 := strconv.ParseUint(parts[0], 10, 32)
	t, e2 := strconv.ParseUint(parts[3], 10, 32)
	if e1 != nil || e2 != nil {
		return 0, 0, fmt.Errorf("bad core usage field %q", s)
	}
	return uint32(a), uint32(t), nil
}

// Fields per job line: state jobid user group nodelist start end elapsed partition numnodes name.
// The name is the tail of the line and may contain spaces or be absent; an absent name becomes
// "-".

const jobFixedFieldCount = 10

func ParseJobLines(text string) ([]*JobRecord, error) {
	var records []*JobRecord
	for lineNo, line := range nonEmptyLines(text) {
		fields := strings.Fields(line)
		if len(fields) < jobFixedFieldCount {
			return nil, fmt.Errorf(
				"Job snapshot line %d: expected at least %d fields, got %d: %s",
				lineNo+1, jobFixedFieldCount, len(fields), line)
		}
		id, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("Job snapshot line %d: bad job id %q", lineNo+1, fields[1])
		}
		elapsedSec, err := ParseElapsed(fields[7])
		if err != nil {
			return nil, fmt.Errorf("Job snapshot line %d: %w", lineNo+1, err)
		}
		numNodes, err := strconv.ParseUint(fields[9], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("Job snapshot line %d: bad node count %q", lineNo+1, fields[9])
		}
		name := strings.Join(fields[jobFixedFieldCount:], " ")
		if name == "" {
			name = "-"
		}
		records = append(records, &JobRecord{
			Id:         uint32(id),
			User:       fields[2],
			Group:      fields[3],
			NodeList:   fields[4],
			Start:      fields[5],
			End:        fields[6],
			Elapsed:    fields[7],
			ElapsedSec: elapsedSec,
			Partition:  fields[8],
			NumNodes:   uint32(numNodes),
			Name:       name,
		})
	}
	return records, nil
}

// ParseElapsed decodes the scheduler's variable-granularity elapsed-time format: ss, mm:ss,
// hh:mm:ss or dd-hh:mm:ss.  Getting a granularity wrong here silently corrupts the grace-period
// decision, so anything not exactly in that shape is an error.

func ParseElapsed(s string) (int64, error) {
	parts := strings.Split(s, ":")
	var days, hours, minutes, seconds int64
	var err error
	bad := func() (int64, error) {
		return 0, fmt.Errorf("Bad elapsed time %q", s)
	}
	switch len(parts) {
	case 1:
		seconds, err = parseTimePart(parts[0])
		if err != nil {
			return bad()
		}
	case 2:
		minutes, err = parseTimePart(parts[0])
		if err != nil {
			return bad()
		}
		seconds, err = parseTimePart(parts[1])
		if err != nil {
			return bad()
		}
	case 3:
		head := parts[0]
		if d, h, found := strings.Cut(head, "-"); found {
			days, err = parseTimePart(d)
			if err != nil {
				return bad()
			}
			head = h
		}
		hours, err = parseTimePart(head)
		if err != nil {
			return bad()
		}
		minutes, err = parseTimePart(parts[1])
		if err != nil {
			return bad()
		}
		seconds, err = parseTimePart(parts[2])
		if err != nil {
			return bad()
		}
	default:
		return bad()
	}
	return days*86400 + hours*3600 + minutes*60 + seconds, nil
}

func parseTimePart(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty part")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
