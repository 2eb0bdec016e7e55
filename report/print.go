package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"nodestat/health"
)

// Fixed-column output with a two-line header.  The width of each column is the max across all the
// entries in the column, headers included.  Flagged cells are colorized red (critical) or yellow
// (warning); cells are padded before the escapes are added so the escapes do not disturb the
// column widths.

const (
	colRed    = "\x1b[0;31m"
	colYellow = "\x1b[0;33m"
	colReset  = "\x1b[0m"
)

func (rc *ReportCommand) color(s string, sev health.Severity) string {
	if rc.NoColor || sev == health.None {
		return s
	}
	code := colYellow
	if sev == health.Critical {
		code = colRed
	}
	return code + s + colReset
}

func (rc *ReportCommand) print(out io.Writer, rows []*Row) {
	w := bufio.NewWriter(out)
	defer w.Flush()

	head1 := []string{"Hostname", "Partition", "State", "Use/Tot", "CPUload", "Memsize", "Freemem"}
	head2 := []string{"", "", "", "", "(15min)", "(MB)", "(MB)"}
	leftAlign := []bool{true, true, true, false, false, false, false}
	if rc.ShowGres {
		head1 = append(head1, "GRES")
		head2 = append(head2, "")
		leftAlign = append(leftAlign, true)
	}
	jobHead := "JobID User"
	if rc.ShowName {
		jobHead += " Name"
	}
	if rc.ShowStart {
		jobHead += " Start"
	}
	if rc.ShowEnd {
		jobHead += " End"
	}
	if rc.ShowElapsed {
		jobHead += " Elapsed"
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		partition := strings.Join(r.Partitions, "+")
		if r.DefaultPartition {
			partition += "*"
		}
		c := []string{
			r.Host,
			partition,
			r.State,
			fmt.Sprintf("%d/%d", r.AllocCores, r.TotalCores),
			fmt.Sprintf("%.2f", r.CpuLoad),
			fmt.Sprintf("%d", r.MemMB),
			fmt.Sprintf("%d", r.FreeMemMB),
		}
		if rc.ShowGres {
			c = append(c, r.Gres)
		}
		cells[i] = c
	}

	widths := make([]int, len(head1))
	for col := range widths {
		widths[col] = max(utf8.RuneCountInString(head1[col]), utf8.RuneCountInString(head2[col]))
	}
	for _, c := range cells {
		for col, text := range c {
			widths[col] = max(widths[col], utf8.RuneCountInString(text))
		}
	}

	pad := func(col int, s string) string {
		fill := strings.Repeat(" ", widths[col]-utf8.RuneCountInString(s))
		if leftAlign[col] {
			return s + fill
		}
		return fill + s
	}

	var s strings.Builder
	emit := func() {
		fmt.Fprintln(w, strings.TrimRight(s.String(), " "))
		s.Reset()
	}

	for col, h := range head1 {
		if col > 0 {
			s.WriteByte(' ')
		}
		s.WriteString(pad(col, h))
	}
	s.WriteString("  Joblist")
	emit()
	for col, h := range head2 {
		if col > 0 {
			s.WriteByte(' ')
		}
		s.WriteString(pad(col, h))
	}
	s.WriteString("  " + jobHead)
	emit()

	for i, r := range rows {
		severities := []health.Severity{
			health.None,
			health.None,
			r.flags.State,
			r.flags.Cores,
			r.flags.Load,
			health.None,
			r.flags.Memory,
		}
		if rc.ShowGres {
			severities = append(severities, health.None)
		}
		for col, text := range cells[i] {
			if col > 0 {
				s.WriteByte(' ')
			}
			s.WriteString(rc.color(pad(col, text), severities[col]))
		}
		joblist := r.JobInfo
		if r.Interest > 0 {
			if joblist != "" {
				joblist += " "
			}
			joblist += rc.color("*", health.Critical)
		}
		s.WriteString("  " + joblist)
		emit()
	}
}
