package cluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/molcalc/chemjobs/internal/domain/model"
)

// ReportKind discriminates the shapes a per-job check entry can take.
type ReportKind int

const (
	// ReportUnchanged is the numeric sentinel 0.
	ReportUnchanged ReportKind = iota
	// ReportStatus is a structured status record.
	ReportStatus
	// ReportLegacyCompleted is the numeric marker 1 emitted by older cluster scripts.
	ReportLegacyCompleted
	// ReportLegacyError is a bare error string emitted by older cluster scripts.
	ReportLegacyError
)

// CheckReport maps job id to the remote view of that job.
type CheckReport map[string]StatusReport

// StatusReport is one entry of a CheckReport.
type StatusReport struct {
	Kind         ReportKind
	State        string
	Started      *time.Time
	Finished     *time.Time
	ExitCode     string
	Reason       string
	ErrorMessage string
}

// statusRecord covers both field spellings the cluster scripts emit.
type statusRecord struct {
	Status       string          `json:"status"`
	State        string          `json:"state"`
	Started      json.RawMessage `json:"started"`
	StartTime    json.RawMessage `json:"start_time"`
	Finished     json.RawMessage `json:"finished"`
	EndTime      json.RawMessage `json:"end_time"`
	ExitCode     json.RawMessage `json:"exitcode"`
	Reason       string          `json:"reason"`
	ErrorMessage string          `json:"error_message"`
}

// UnmarshalJSON decodes a number, string or object entry.
func (r *StatusReport) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("empty status entry")
	}

	switch data[0] {
	case '"':
		var msg string
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		*r = StatusReport{Kind: ReportLegacyError, State: string(model.JobStatusFailed), ErrorMessage: msg}
		return nil
	case '{':
		return r.decodeRecord(data)
	default:
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("unexpected status entry %s", string(data))
		}
		switch n.String() {
		case "0":
			*r = StatusReport{Kind: ReportUnchanged}
		case "1":
			*r = StatusReport{Kind: ReportLegacyCompleted, State: string(model.JobStatusCompleted)}
		default:
			return fmt.Errorf("unexpected numeric status entry %s", n)
		}
		return nil
	}
}

func (r *StatusReport) decodeRecord(data []byte) error {
	var rec statusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	state := strings.ToUpper(strings.TrimSpace(firstNonEmpty(rec.Status, rec.State)))
	if state == "" {
		return fmt.Errorf("status record without status or state")
	}
	started, err := parseReportTime(firstRaw(rec.Started, rec.StartTime))
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	finished, err := parseReportTime(firstRaw(rec.Finished, rec.EndTime))
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	exit, err := rawScalar(rec.ExitCode)
	if err != nil {
		return fmt.Errorf("exitcode: %w", err)
	}
	*r = StatusReport{
		Kind:         ReportStatus,
		State:        state,
		Started:      started,
		Finished:     finished,
		ExitCode:     exit,
		Reason:       rec.Reason,
		ErrorMessage: rec.ErrorMessage,
	}
	return nil
}

// IsUnchanged reports whether the entry is the "nothing new" sentinel.
func (r StatusReport) IsUnchanged() bool {
	return r.Kind == ReportUnchanged
}

// IsCompleted reports whether the cluster finished the job successfully.
func (r StatusReport) IsCompleted() bool {
	return r.Kind != ReportUnchanged && r.State == string(model.JobStatusCompleted)
}

// IsRunning reports whether the cluster reports the job as executing.
func (r StatusReport) IsRunning() bool {
	return r.Kind == ReportStatus && r.State == string(model.JobStatusRunning)
}

// IsPending reports whether the cluster still has the job queued.
func (r StatusReport) IsPending() bool {
	return r.Kind == ReportStatus && (r.State == string(model.JobStatusSubmitted) || r.State == "PENDING")
}

// IsFailed reports whether the entry must be recorded as a remote job failure.
// Every state that is not unchanged, COMPLETED, RUNNING or still queued counts.
func (r StatusReport) IsFailed() bool {
	return !r.IsUnchanged() && !r.IsCompleted() && !r.IsRunning() && !r.IsPending()
}

// FailureMessage composes the diagnostic recorded on a FAILED job.
func (r StatusReport) FailureMessage() string {
	if r.Kind == ReportLegacyError {
		return "remote job failed: " + r.ErrorMessage
	}
	exit := r.ExitCode
	if exit == "" {
		exit = "unknown"
	}
	reason := r.Reason
	if reason == "" {
		reason = "unknown"
	}
	msg := fmt.Sprintf("remote job failed: state=%s exitcode=%s reason=%s", r.State, exit, reason)
	if r.ErrorMessage != "" {
		msg += ": " + r.ErrorMessage
	}
	return msg
}

// DecodeCheckReport decodes a raw check response.
func DecodeCheckReport(data []byte) (CheckReport, error) {
	var report CheckReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	if report == nil {
		report = CheckReport{}
	}
	return report, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

func rawScalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", string(raw))
	}
	return n.String(), nil
}

// Layouts seen in scheduler accounting output, most specific first.
var reportTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
}

// parseReportTime accepts RFC 3339, zone-less timestamps (read as UTC), or unix seconds.
// Placeholders such as "Unknown" or "None" decode to nil.
func parseReportTime(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var secs json.Number
		if err := json.Unmarshal(raw, &secs); err != nil {
			return nil, fmt.Errorf("unsupported time value %s", string(raw))
		}
		i, err := strconv.ParseInt(secs.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unsupported time value %s", string(raw))
		}
		t := time.Unix(i, 0).UTC()
		return &t, nil
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "unknown", "none", "n/a":
		return nil, nil
	}
	for _, layout := range reportTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", s)
}
