package snapshot

import (
	"strings"
	"testing"
)

func TestParseElapsed(t *testing.T) {
	expectElapsed(t, "45", false, 45)
	expectElapsed(t, "3:20", false, 200)
	expectElapsed(t, "1:02:03", false, 3723)
	expectElapsed(t, "2-01:02:03", false, 176523)
	expectElapsed(t, "0:00", false, 0)
	expectElapsed(t, "", true, 0)
	expectElapsed(t, "1:2:3:4", true, 0)
	expectElapsed(t, "x:20", true, 0)
	expectElapsed(t, "1-2", true, 0)
	expectElapsed(t, "2-:02:03", true, 0)
}

func expectElapsed(t *testing.T, s string, e bool, ans int64) {
	t.Helper()
	n, err := ParseElapsed(s)
	if !e && err != nil {
		t.Fatal(err)
	}
	if e && err == nil {
		t.Fatalf("Expected error for %q, got none", s)
	}
	if !e && n != ans {
		t.Fatalf("Elapsed %q: expected %d, got %d", s, ans, n)
	}
}

func TestParseNodeLines(t *testing.T) {
	records, err := ParseNodeLines(`
c1-1 normal* 4/60/0/64 4.02 512000 481000 mix 2 (null)
c1-2 bigmem 64/0/0/64 64.11 1024000 80500 alloc$ 1 gpu:4
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	r := records[0]
	if r.Host != "c1-1" || r.Partition != "normal" || !r.DefaultPartition {
		t.Fatalf("Record 0 identity: %v", *r)
	}
	if r.AllocCores != 4 || r.TotalCores != 64 {
		t.Fatalf("Record 0 cores: %v", *r)
	}
	if r.CpuLoad != 4.02 || r.MemMB != 512000 || r.FreeMemMB != 481000 {
		t.Fatalf("Record 0 numbers: %v", *r)
	}
	if r.State != "mix" || r.ThreadsPerCore != 2 || r.Gres != "" {
		t.Fatalf("Record 0 state/tpc/gres: %v", *r)
	}
	r = records[1]
	if r.Partition != "bigmem" || r.DefaultPartition {
		t.Fatalf("Record 1 partition: %v", *r)
	}
	// Maintenance-pending marker stripped
	if r.State != "alloc" {
		t.Fatalf("Record 1 state: %v", *r)
	}
	if r.Gres != "gpu:4" {
		t.Fatalf("Record 1 gres: %v", *r)
	}
}

func TestParseNodeLinesErrors(t *testing.T) {
	// Wrong arity must fail the whole ingest
	_, err := ParseNodeLines("c1-1 normal 4/60/0/64 4.02 512000 481000 mix 2")
	if err == nil || !strings.Contains(err.Error(), "expected 9 fields") {
		t.Fatalf("Expected arity error, got %v", err)
	}
	// Core usage must be a/i/o/t
	_, err = ParseNodeLines("c1-1 normal 4/60 4.02 512000 481000 mix 2 (null)")
	if err == nil || !strings.Contains(err.Error(), "core usage") {
		t.Fatalf("Expected core usage error, got %v", err)
	}
	// Unparsable number
	_, err = ParseNodeLines("c1-1 normal 4/60/0/64 hot 512000 481000 mix 2 (null)")
	if err == nil {
		t.Fatal("Expected cpu load error, got none")
	}
}

func TestCanonicalState(t *testing.T) {
	for input, want := range map[string]string{
		"alloc":   "alloc",
		"down*":   "down",
		"drain$":  "drain",
		"boot@":   "boot",
		"idle~":   "idle",
		"mix#":    "mix",
		"maint$@": "maint",
	} {
		if got := CanonicalState(input); got != want {
			t.Fatalf("State %q: expected %q, got %q", input, want, got)
		}
	}
}

func TestParseJobLines(t *testing.T) {
	records, err := ParseJobLines(`
RUNNING 100001 alice users c1-[1-3] 2026-08-29T06:00:00 2026-08-30T06:00:00 3:20 normal 3 training run 7
RUNNING 100002 bob bob c1-4 2026-08-29T06:00:00 N/A 2-01:02:03 bigmem 1
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	r := records[0]
	if r.Id != 100001 || r.User != "alice" || r.Group != "users" {
		t.Fatalf("Record 0 identity: %v", *r)
	}
	if r.NodeList != "c1-[1-3]" || r.NumNodes != 3 || r.Partition != "normal" {
		t.Fatalf("Record 0 nodes: %v", *r)
	}
	if r.ElapsedSec != 200 || r.Elapsed != "3:20" {
		t.Fatalf("Record 0 elapsed: %v", *r)
	}
	// Name is the tail of the line, spaces and all
	if r.Name != "training run 7" {
		t.Fatalf("Record 0 name: %q", r.Name)
	}
	// Absent name becomes a placeholder
	if records[1].Name != "-" {
		t.Fatalf("Record 1 name: %q", records[1].Name)
	}
	if records[1].ElapsedSec != 176523 {
		t.Fatalf("Record 1 elapsed: %v", *records[1])
	}
}

func TestParseJobLinesErrors(t *testing.T) {
	_, err := ParseJobLines("RUNNING 100001 alice users c1-1 start end 3:20 normal")
	if err == nil || !strings.Contains(err.Error(), "at least 10 fields") {
		t.Fatalf("Expected arity error, got %v", err)
	}
	_, err = ParseJobLines("RUNNING 100001 alice users c1-1 start end 3:20:4:5 normal 1 x")
	if err == nil || !strings.Contains(err.Error(), "elapsed") {
		t.Fatalf("Expected elapsed error, got %v", err)
	}
}

func TestSingleHostNoExpansion(t *testing.T) {
	// A plain name must not reach the external expander
	cs := NewCommandSource()
	hosts, err := cs.ExpandNodeList("c1-1.fram")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 1 || hosts[0] != "c1-1.fram" {
		t.Fatalf("Expected identity expansion: %v", hosts)
	}
}
