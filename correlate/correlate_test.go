package correlate

import (
	"fmt"
	"testing"

	"nodestat/snapshot"
)

func expandFixed(sets map[string][]string) func(string) ([]string, error) {
	return func(expr string) ([]string, error) {
		if hosts, found := sets[expr]; found {
			return hosts, nil
		}
		return nil, fmt.Errorf("Unknown expression %q", expr)
	}
}

func job(id uint32, user, group, nodelist string, elapsed int64, partition string, numNodes uint32) *snapshot.JobRecord {
	return &snapshot.JobRecord{
		Id:         id,
		User:       user,
		Group:      group,
		NodeList:   nodelist,
		ElapsedSec: elapsed,
		Partition:  partition,
		NumNodes:   numNodes,
		Name:       "-",
	}
}

func TestSingleHostContribution(t *testing.T) {
	expand := expandFixed(map[string][]string{"a": {"a"}})
	aggs, err := Build(
		[]*snapshot.JobRecord{job(1, "alice", "users", "a", 100, "p1", 1)},
		expand,
		Options{},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(aggs) != 1 {
		t.Fatalf("Expected 1 aggregate, got %d", len(aggs))
	}
	a := aggs["a"]
	if a == nil || a.JobCount != 1 {
		t.Fatalf("Aggregate for a: %v", a)
	}
	if !a.HasMinElapsed || a.MinElapsedSec != 100 {
		t.Fatalf("Min elapsed: %v", *a)
	}
	if a.Partition != "p1" || a.MultiPartition || a.MultiNodeJobs != 0 {
		t.Fatalf("Partition bookkeeping: %v", *a)
	}
	if a.JobInfo != " 1 alice" {
		t.Fatalf("Job info: %q", a.JobInfo)
	}
}

func TestMultiHostContribution(t *testing.T) {
	expand := expandFixed(map[string][]string{"c[1-3]": {"c1", "c2", "c3"}})
	aggs, err := Build(
		[]*snapshot.JobRecord{job(7, "alice", "users", "c[1-3]", 50, "p1", 3)},
		expand,
		Options{},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(aggs) != 3 {
		t.Fatalf("Expected aggregates for exactly c1,c2,c3: %v", aggs)
	}
	for _, h := range []string{"c1", "c2", "c3"} {
		a := aggs[h]
		if a == nil || a.JobCount != 1 || a.JobInfo != " 7 alice" {
			t.Fatalf("Aggregate for %s: %v", h, a)
		}
		if a.MultiNodeJobs != 1 {
			t.Fatalf("Multi-node count for %s: %v", h, *a)
		}
	}
}

func TestPartitionConflict(t *testing.T) {
	// First-seen partition wins for the recorded value; the conflict flag records the union.
	expand := expandFixed(map[string][]string{"a": {"a"}})
	aggs, err := Build(
		[]*snapshot.JobRecord{
			job(1, "alice", "users", "a", 100, "P1", 1),
			job(2, "bob", "users", "a", 200, "P2", 1),
		},
		expand,
		Options{},
	)
	if err != nil {
		t.Fatal(err)
	}
	a := aggs["a"]
	if a.Partition != "P1" {
		t.Fatalf("Recorded partition: %q", a.Partition)
	}
	if !a.MultiPartition {
		t.Fatal("Expected multiple-partitions flag")
	}
	if a.JobCount != 2 {
		t.Fatalf("Job count: %d", a.JobCount)
	}
}

func TestMinElapsedIsMostRecent(t *testing.T) {
	expand := expandFixed(map[string][]string{"a": {"a"}})
	aggs, err := Build(
		[]*snapshot.JobRecord{
			job(1, "alice", "users", "a", 5000, "p1", 1),
			job(2, "bob", "users", "a", 30, "p1", 1),
			job(3, "eve", "users", "a", 900, "p1", 1),
		},
		expand,
		Options{},
	)
	if err != nil {
		t.Fatal(err)
	}
	if a := aggs["a"]; a.MinElapsedSec != 30 {
		t.Fatalf("Expected min elapsed 30, got %d", a.MinElapsedSec)
	}
}

func TestSelectedUserAndGroup(t *testing.T) {
	expand := expandFixed(map[string][]string{"a": {"a"}, "b": {"b"}})
	aggs, err := Build(
		[]*snapshot.JobRecord{
			job(1, "alice", "users", "a", 100, "p1", 1),
			job(2, "bob", "staff", "b", 100, "p1", 1),
		},
		expand,
		Options{User: "alice", Group: "staff"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !aggs["a"].SelectedUser || aggs["a"].SelectedGroup {
		t.Fatalf("Aggregate for a: %v", *aggs["a"])
	}
	if aggs["b"].SelectedUser || !aggs["b"].SelectedGroup {
		t.Fatalf("Aggregate for b: %v", *aggs["b"])
	}
}

func TestJobInfoFormatter(t *testing.T) {
	expand := expandFixed(map[string][]string{"a": {"a"}})
	aggs, err := Build(
		[]*snapshot.JobRecord{
			job(1, "alice", "users", "a", 100, "p1", 1),
			job(2, "bob", "users", "a", 200, "p1", 1),
		},
		expand,
		Options{JobInfo: func(j *snapshot.JobRecord) string {
			return fmt.Sprintf(" <%d>", j.Id)
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	// Scan order
	if a := aggs["a"]; a.JobInfo != " <1> <2>" {
		t.Fatalf("Job info: %q", a.JobInfo)
	}
}
