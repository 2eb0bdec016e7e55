// Fold the complete job snapshot into per-node aggregates.
//
// The aggregate map must be fully built before any node is evaluated: a node's flags depend on
// state that is only known after all jobs have been seen.  The fold is commutative except for
// partition-conflict detection, which depends only on set membership, so the result does not
// depend on job scan order.

package correlate

import (
	"nodestat/snapshot"
)

// Aggregate is the derived per-node state, keyed by hostname in the map returned from Build.
// MinElapsedSec is the smallest elapsed time among the jobs on the node ("most recent job age");
// it starts unset, not zero, so the first job always sets it.

type Aggregate struct {
	JobInfo        string
	JobCount       int
	MinElapsedSec  int64
	HasMinElapsed  bool
	Partition      string
	MultiPartition bool
	MultiNodeJobs  int
	SelectedUser   bool
	SelectedGroup  bool
}

// Options selects the user/group whose presence is recorded per node and formats the per-job info
// text appended to the node's job list.

type Options struct {
	User    string
	Group   string
	JobInfo func(*snapshot.JobRecord) string
}

// Build applies every job once to the aggregate of every host in its expanded node set.  A job
// spanning N nodes contributes to all N aggregates; no host outside the set is touched.

func Build(
	jobs []*snapshot.JobRecord,
	expand func(string) ([]string, error),
	opts Options,
) (map[string]*Aggregate, error) {
	byhost := make(map[string]*Aggregate)
	for _, job := range jobs {
		hosts, err := expand(job.NodeList)
		if err != nil {
			return nil, err
		}
		info := job.Info()
		if opts.JobInfo != nil {
			info = opts.JobInfo(job)
		}
		for _, h := range hosts {
			agg, found := byhost[h]
			if !found {
				agg = new(Aggregate)
				byhost[h] = agg
			}
			agg.JobInfo += info
			agg.JobCount++
			if !agg.HasMinElapsed || job.ElapsedSec < agg.MinElapsedSec {
				agg.MinElapsedSec = job.ElapsedSec
				agg.HasMinElapsed = true
			}
			switch {
			case agg.Partition == "":
				agg.Partition = job.Partition
			case agg.Partition != job.Partition:
				agg.MultiPartition = true
			}
			if job.NumNodes > 1 {
				agg.MultiNodeJobs++
			}
			if opts.User != "" && job.User == opts.User {
				agg.SelectedUser = true
			}
			if opts.Group != "" && job.Group == opts.Group {
				agg.SelectedGroup = true
			}
		}
	}
	return byhost, nil
}
