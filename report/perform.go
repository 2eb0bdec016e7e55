package report

import (
	"fmt"
	"io"
	"strings"

	. "nodestat/common"
	"nodestat/correlate"
	"nodestat/health"
	"nodestat/snapshot"
)

// Row is one output line, also the JSON shape served by the daemon.  Flags lists the anomaly
// signals as "signal:severity" strings; Interest is the number of signals that made the node
// worth surfacing under the active mode.

type Row struct {
	Host             string   `json:"host"`
	Partitions       []string `json:"partitions"`
	DefaultPartition bool     `json:"defaultPartition,omitempty"`
	State            string   `json:"state"`
	AllocCores       uint32   `json:"allocCores"`
	TotalCores       uint32   `json:"totalCores"`
	CpuLoad          float64  `json:"cpuLoad"`
	MemMB            uint64   `json:"memMB"`
	FreeMemMB        uint64   `json:"freeMemMB"`
	Gres             string   `json:"gres,omitempty"`
	JobCount         int      `json:"jobCount"`
	JobInfo          string   `json:"jobs"`
	Flags            []string `json:"flags,omitempty"`
	Interest         int      `json:"interest"`

	flags health.Flags
}

func (rc *ReportCommand) Perform(stdout, _ io.Writer) error {
	src := rc.Source
	if src == nil {
		src = snapshot.NewCommandSource()
	}
	rows, err := rc.Collect(src)
	if err != nil {
		return err
	}
	rc.print(stdout, rows)
	return nil
}

// Collect runs the pipeline: ingest both snapshots, fold the jobs into per-node aggregates,
// evaluate every node, then select and deduplicate.  The job snapshot is folded completely before
// any node is evaluated; a node's flags depend on aggregate state that is only known after all
// jobs are seen.

func (rc *ReportCommand) Collect(src snapshot.Source) ([]*Row, error) {
	var hostSet map[string]bool
	if rc.Nodes != "" {
		hosts, err := src.ExpandNodeList(rc.Nodes)
		if err != nil {
			return nil, fmt.Errorf("Bad node selection %q\n%w", rc.Nodes, err)
		}
		hostSet = make(map[string]bool, len(hosts))
		for _, h := range hosts {
			hostSet[h] = true
		}
	}

	jobsText, err := src.Jobs()
	if err != nil {
		return nil, err
	}
	jobs, err := snapshot.ParseJobLines(jobsText)
	if err != nil {
		return nil, err
	}

	nodesText, err := src.Nodes()
	if err != nil {
		return nil, err
	}
	records, err := snapshot.ParseNodeLines(nodesText)
	if err != nil {
		return nil, err
	}
	if rc.Verbose {
		Log.Infof("%d node records, %d running jobs", len(records), len(jobs))
	}

	aggs, err := correlate.Build(jobs, src.ExpandNodeList, correlate.Options{
		User:    rc.User,
		Group:   rc.Group,
		JobInfo: rc.jobInfo,
	})
	if err != nil {
		return nil, err
	}

	// Join node records with aggregates, in node-snapshot order.  In unique mode (the default) a
	// node that appears in several partitions keeps its first row; later rows only contribute
	// their partition name to the union.

	var rows []*Row
	var byhost map[string]*Row
	if !rc.PerPartition {
		byhost = make(map[string]*Row)
	}
	for _, n := range records {
		if byhost != nil {
			if prev, found := byhost[n.Host]; found {
				prev.Partitions = append(prev.Partitions, n.Partition)
				prev.DefaultPartition = prev.DefaultPartition || n.DefaultPartition
				continue
			}
		}
		agg := aggs[n.Host]
		flags := health.Evaluate(n, agg, rc.thresholds)
		row := &Row{
			Host:             n.Host,
			Partitions:       []string{n.Partition},
			DefaultPartition: n.DefaultPartition,
			State:            n.State,
			AllocCores:       n.AllocCores,
			TotalCores:       n.TotalCores,
			CpuLoad:          n.CpuLoad,
			MemMB:            n.MemMB,
			FreeMemMB:        n.FreeMemMB,
			Gres:             n.Gres,
			Flags:            flagStrings(flags),
			Interest:         health.Interest(flags, rc.IncludeWarnings),
			flags:            flags,
		}
		if agg != nil {
			row.JobCount = agg.JobCount
			row.JobInfo = strings.TrimSpace(agg.JobInfo)
		}
		if byhost != nil {
			byhost[n.Host] = row
		}
		rows = append(rows, row)
	}

	selected := make([]*Row, 0, len(rows))
	for _, r := range rows {
		if rc.selectRow(r, aggs[r.Host], hostSet) {
			selected = append(selected, r)
		}
	}
	if rc.Verbose {
		Log.Infof("%d rows selected of %d", len(selected), len(rows))
	}
	return selected, nil
}

// Predicate filters always restrict the candidate set; the health flags drive inclusion only when
// no absolute memory filter is active and all nodes were not requested.

func (rc *ReportCommand) selectRow(r *Row, agg *correlate.Aggregate, hostSet map[string]bool) bool {
	if rc.partitionSet != nil {
		found := false
		for _, p := range r.Partitions {
			if rc.partitionSet[p] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if rc.excludeSet != nil && rc.excludeSet[r.State] {
		return false
	}
	if hostSet != nil && !hostSet[r.Host] {
		return false
	}
	if rc.User != "" && (agg == nil || !agg.SelectedUser) {
		return false
	}
	if rc.Group != "" && (agg == nil || !agg.SelectedGroup) {
		return false
	}
	switch {
	case rc.FreeMemBelow >= 0:
		return r.FreeMemMB < uint64(rc.FreeMemBelow)
	case rc.FreeMemAtLeast >= 0:
		return r.FreeMemMB >= uint64(rc.FreeMemAtLeast)
	case rc.AllNodes:
		return true
	default:
		return r.Interest > 0
	}
}

func (rc *ReportCommand) jobInfo(j *snapshot.JobRecord) string {
	s := j.Info()
	if rc.ShowName {
		s += " " + j.Name
	}
	if rc.ShowStart {
		s += " " + j.Start
	}
	if rc.ShowEnd {
		s += " " + j.End
	}
	if rc.ShowElapsed {
		s += " " + j.Elapsed
	}
	return s
}

func flagStrings(f health.Flags) []string {
	var xs []string
	for _, x := range []struct {
		name string
		sev  health.Severity
	}{
		{"state", f.State},
		{"load", f.Load},
		{"cores", f.Cores},
		{"memory", f.Memory},
	} {
		if x.sev != health.None {
			xs = append(xs, x.name+":"+x.sev.String())
		}
	}
	return xs
}
