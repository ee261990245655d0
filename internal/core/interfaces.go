// Package core declares the ports the chemjobs services depend on.
package core

import (
	"context"
	"time"

	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	"github.com/molcalc/chemjobs/internal/observability/notify"
)

// This file contains repository and gateway interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete adapters.

// JobRepository is the authoritative store of job identity and status.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ListByStatus(ctx context.Context, statuses []model.JobStatus) ([]*model.Job, error)
	ListByOwner(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	CountByOwner(ctx context.Context, opts model.JobListOptions) (int, error)
	// Update applies a single-row atomic write. It returns model.ErrJobTerminal when the
	// row already reached a terminal status and model.ErrJobNotFound when it does not exist.
	Update(ctx context.Context, id string, upd model.JobUpdate) (*model.Job, error)
}

// ClusterGateway exchanges typed messages with the remote compute cluster.
// Each call is a single synchronous request/response with no retry.
type ClusterGateway interface {
	Submit(ctx context.Context, req cluster.SubmitRequest) (cluster.Ack, error)
	Cancel(ctx context.Context, req cluster.CancelRequest) (cluster.Ack, error)
	Check(ctx context.Context, req cluster.CheckRequest) (cluster.CheckReport, error)
	Upload(ctx context.Context, req cluster.UploadRequest) (cluster.UploadResult, error)
	Clean(ctx context.Context, req cluster.CleanRequest) (cluster.Ack, error)
}

// ArtifactStore mints time-limited credentials against the blob store.
type ArtifactStore interface {
	MintUploadCredential(ctx context.Context, req model.UploadCredentialRequest) (*model.UploadCredential, error)
	MintDownloadURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// LockRepository provides short-lived distributed locks keyed by string.
type LockRepository interface {
	// SetIfNotExists atomically sets key only if it does not exist.
	// Returns true if the key was set.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DeleteIfEquals removes key only while it still holds value.
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)
}

// TickLocker serialises reconciliation ticks across process replicas.
type TickLocker interface {
	// WithTickLock runs fn while holding the cluster-wide tick lock.
	// It returns false without calling fn when another replica holds the lock.
	WithTickLock(ctx context.Context, fn func(ctx context.Context) error) (bool, error)
}

// FailureNotifier forwards operator alerts about failed ticks and failed jobs.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}
