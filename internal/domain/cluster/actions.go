// Package cluster defines the request and response payloads exchanged with the
// remote compute cluster. Every action has a fixed schema; the wire envelope is
// {"action": <name>, "parameters": <payload>}.
package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/molcalc/chemjobs/internal/domain/model"
)

// Action names a remote entrypoint.
type Action string

const (
	ActionSubmit Action = "submit"
	ActionCancel Action = "cancel"
	ActionCheck  Action = "check"
	ActionUpload Action = "upload"
	ActionClean  Action = "clean"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionSubmit, ActionCancel, ActionCheck, ActionUpload, ActionClean:
		return true
	default:
		return false
	}
}

// Envelope is the JSON document written to the remote entrypoint.
type Envelope struct {
	Action     Action          `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
}

// NewEnvelope marshals params into an envelope for action.
func NewEnvelope(action Action, params any) (Envelope, error) {
	if !action.Valid() {
		return Envelope{}, fmt.Errorf("unknown cluster action %q", action)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s parameters: %w", action, err)
	}
	return Envelope{Action: action, Parameters: raw}, nil
}

// StatusSuccess is the flat success marker returned by submit, cancel and clean.
const StatusSuccess = "SUCCESS"

// UploadSuccessCode is the status code the object store returns for an accepted POST upload.
const UploadSuccessCode = 204

// Ack is the flat acknowledgement returned by submit, cancel and clean.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the remote side acknowledged success.
func (a Ack) OK() bool {
	return strings.EqualFold(a.Status, StatusSuccess)
}

// Err converts a negative acknowledgement into an error.
func (a Ack) Err(action Action) error {
	if a.OK() {
		return nil
	}
	status := a.Status
	if status == "" {
		status = "<empty>"
	}
	if a.Message != "" {
		return fmt.Errorf("%w: %s returned status=%s: %s", ErrRejected, action, status, a.Message)
	}
	return fmt.Errorf("%w: %s returned status=%s", ErrRejected, action, status)
}

// ErrRejected is returned when the cluster answered but declined the request.
var ErrRejected = errors.New("cluster rejected request")

// SubmitRequest carries the opaque job parameters with the job id injected.
type SubmitRequest struct {
	JobID      string
	Parameters json.RawMessage
}

// MarshalJSON flattens the job id into the parameter object as "id".
func (r SubmitRequest) MarshalJSON() ([]byte, error) {
	params := map[string]json.RawMessage{}
	if len(r.Parameters) > 0 && string(r.Parameters) != "null" {
		if err := json.Unmarshal(r.Parameters, &params); err != nil {
			return nil, fmt.Errorf("submit parameters must be a JSON object: %w", err)
		}
	}
	id, err := json.Marshal(r.JobID)
	if err != nil {
		return nil, err
	}
	params["id"] = id
	return json.Marshal(params)
}

// CancelRequest asks the cluster to stop a job.
type CancelRequest struct {
	JobID string `json:"id"`
}

// CheckRequest is the reconciliation batch: job id to last known local status code.
// Every entry is sent as 0; the cluster answers only for jobs whose state changed.
type CheckRequest map[string]int

// NewCheckRequest builds a batch from a job snapshot.
func NewCheckRequest(jobs []*model.Job) CheckRequest {
	req := make(CheckRequest, len(jobs))
	for _, j := range jobs {
		if j == nil {
			continue
		}
		req[j.ID] = 0
	}
	return req
}

// UploadRequest tells the cluster to push one artifact with a presigned credential.
type UploadRequest struct {
	JobID      string                  `json:"job_id"`
	FileType   string                  `json:"file_type"`
	Credential *model.UploadCredential `json:"presigned_response"`
}

// UploadResult is the outcome of one artifact push.
type UploadResult struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// OK reports whether the object store accepted the upload.
func (r UploadResult) OK() bool {
	return r.StatusCode == UploadSuccessCode
}

// UnmarshalJSON accepts either {"status_code": n} or a bare status code.
func (r *UploadResult) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*r = UploadResult{StatusCode: code}
		return nil
	}
	type alias UploadResult
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode upload result: %w", err)
	}
	*r = UploadResult(a)
	return nil
}

// CleanRequest asks the cluster to remove scratch space for a job.
type CleanRequest struct {
	JobID string `json:"job_id"`
}
