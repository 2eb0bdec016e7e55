// `nodestat daemon` - HTTP server that serves the node report to remote clients.
//
// The server responds to GET /report with the same rows the report verb prints, as JSON.  Query
// parameters mirror the report selection flags.  Each request runs the full snapshot pipeline
// against the scheduler; nothing is cached across requests.
//
// Termination: SIGHUP or SIGTERM shuts the server down in an orderly manner.  The daemon logs to
// the syslog with the tag defined below.

package daemon

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"nodestat/command"
	. "nodestat/common"
	"nodestat/process"
	"nodestat/report"
	"nodestat/snapshot"
	"nodestat/status"
)

const (
	defaultListenPort     = 8098
	logTag                = "nodestat/daemon"
	serverShutdownTimeout = 10 * time.Second
)

type DaemonCommand struct {
	command.DevArgs
	command.VerboseArgs
	port uint

	// Substituted by tests; nil means query the scheduler.
	source snapshot.Source
}

func (dc *DaemonCommand) Add(fs *flag.FlagSet) {
	dc.DevArgs.Add(fs)
	dc.VerboseArgs.Add(fs)
	fs.UintVar(&dc.port, "port", defaultListenPort, "Listen for connections on `port`")
}

func (dc *DaemonCommand) Summary() []string {
	return []string{
		"Run nodestat as an HTTP server that responds to GET /report with the",
		"flagged node report as JSON.",
	}
}

func (dc *DaemonCommand) Validate() error {
	return errors.Join(dc.DevArgs.Validate(), dc.VerboseArgs.Validate())
}

type reportInput struct {
	Partitions    string `query:"partition" doc:"Select nodes in these partitions (comma-separated)"`
	User          string `query:"user" doc:"Select nodes running jobs of this user"`
	Group         string `query:"group" doc:"Select nodes running jobs of this group"`
	Nodes         string `query:"nodes" doc:"Select nodes in this nodelist expression"`
	ExcludeStates string `query:"exclude-states" doc:"Exclude nodes in these states (comma-separated)"`
	Warnings      bool   `query:"warnings" doc:"Surface warning-level flags too"`
	All           bool   `query:"all" doc:"Return all selected nodes, flagged or not"`
	MemBelow      int    `query:"mem-below" default:"-1" doc:"Return nodes with free memory below this many MB"`
	MemAtLeast    int    `query:"mem-least" default:"-1" doc:"Return nodes with free memory of at least this many MB"`
	PerPartition  bool   `query:"per-partition" doc:"One row per node per partition instead of unique nodes"`
	Grace         string `query:"grace" doc:"Grace period in seconds"`
}

type reportOutput struct {
	Body struct {
		Rows []*report.Row `json:"rows"`
	}
}

func (dc *DaemonCommand) handleReport(_ context.Context, in *reportInput) (*reportOutput, error) {
	rc := &report.ReportCommand{
		Partitions:      in.Partitions,
		User:            in.User,
		Group:           in.Group,
		Nodes:           in.Nodes,
		ExcludeStates:   in.ExcludeStates,
		IncludeWarnings: in.Warnings,
		AllNodes:        in.All,
		FreeMemBelow:    in.MemBelow,
		FreeMemAtLeast:  in.MemAtLeast,
		PerPartition:    in.PerPartition,
		Grace:           in.Grace,
	}
	rc.Verbose = dc.Verbose
	if err := rc.Validate(); err != nil {
		if dc.Verbose {
			Log.Warningf("Bad report parameters: %v", err)
		}
		return nil, huma.Error400BadRequest("Bad report parameters", err)
	}
	src := dc.source
	if src == nil {
		src = snapshot.NewCommandSource()
	}
	rows, err := rc.Collect(src)
	if err != nil {
		Log.Errorf("Report pipeline failed: %v", err)
		return nil, huma.Error500InternalServerError("Report pipeline failed", err)
	}
	out := new(reportOutput)
	out.Body.Rows = rows
	return out, nil
}

// Note, this is deliberately not called Perform(), a DaemonCommand is not a SimpleCommand.

func (dc *DaemonCommand) RunDaemon(stderr io.Writer) error {
	if err := status.Start(logTag); err != nil {
		fmt.Fprintf(stderr, "Failed to open syslog: %v\n", err)
	}

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("nodestat", Version))
	huma.Get(api, "/report", dc.handleReport)

	server := &http.Server{Addr: fmt.Sprintf(":%d", dc.port), Handler: mux}
	programFailed := make(chan error, 1)
	go func() {
		if dc.Verbose {
			Log.Infof("Listening on port %d", dc.port)
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Log.Errorf("SERVER NOT RUNNING: %v", err)
			programFailed <- err
		}
	}()

	// Wait here until we're stopped by SIGHUP (manual) or SIGTERM (from OS during shutdown).
	process.WaitForSignal(syscall.SIGHUP, syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	server.Shutdown(ctx)

	select {
	case err := <-programFailed:
		return fmt.Errorf("HTTP server failed to start, or errored out\n%w", err)
	default:
		return nil
	}
}
