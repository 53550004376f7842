// Package metrics records command and workflow metrics.
//
// Components receive a Recorder. Noop is the default so callers never check for nil;
// Prometheus backs the /metrics endpoint in the running service.
package metrics

import "time"

// Recorder receives metric observations.
type Recorder interface {
	// ObserveCommand records one command invocation and its outcome ("ok" or an error kind).
	ObserveCommand(command, result string, d time.Duration)
	// SetDownloadProgress records the percent of the running download.
	SetDownloadProgress(percent int)
	// SetWorkflowState records the numeric workflow state.
	SetWorkflowState(state int)
	// IncEventsDropped counts an event discarded for a slow subscriber.
	IncEventsDropped()
}

// Noop discards all observations.
type Noop struct{}

func (Noop) ObserveCommand(string, string, time.Duration) {}
func (Noop) SetDownloadProgress(int)                      {}
func (Noop) SetWorkflowState(int)                         {}
func (Noop) IncEventsDropped()                            {}
