// Package metrics emits the reconciliation engine's standard metrics.
package metrics

import (
	"time"

	obserrors "github.com/molcalc/chemjobs/internal/observability/errors"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultSkipped = "skipped"
	ResultPartial = "partial"
)

// Metric names.
const (
	TickCount        = "reconciler.tick"
	TickDuration     = "reconciler.tick_duration"
	TickBatchSize    = "reconciler.batch_size"
	TickLastSuccess  = "reconciler.last_success_epoch"
	JobOutcome       = "reconciler.job_outcome"
	CollectCount     = "results.collect"
	CollectDuration  = "results.collect_duration"
	ClusterCall      = "cluster.call"
	ClusterCallTimer = "cluster.call_duration"
)

// Observation describes one measured operation.
type Observation struct {
	Name     string
	Timer    string
	Result   string
	Duration time.Duration
	Err      error
	Tags     map[string]string
}

// Emit counts the observation and records its duration when a timer name is set.
// Errors are tagged with their class.
func Emit(sink statsd.Sink, in Observation) {
	if sink == nil || in.Name == "" {
		return
	}
	tags := CloneTags(in.Tags)
	if tags == nil {
		tags = make(map[string]string, 2)
	}
	tags["result"] = in.Result
	if in.Err != nil && in.Result != ResultSuccess {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(in.Name, 1, tags)
	if in.Timer != "" && in.Duration > 0 {
		sink.Timing(in.Timer, in.Duration, CloneTags(tags))
	}
}

// ResultFor maps an error to ResultSuccess or ResultError.
func ResultFor(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
