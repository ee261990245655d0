// Package mocks provides mock implementations of the chemjobs ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().GetByID(gomock.Any(), id).Return(job, nil)
package mocks

// Create, GetByID, ListByStatus, ListByOwner, CountByOwner, Update
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/molcalc/chemjobs/internal/core JobRepository

// Submit, Cancel, Check, Upload, Clean
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cluster_gateway_mock.go github.com/molcalc/chemjobs/internal/core ClusterGateway

// MintUploadCredential, MintDownloadURL
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=artifact_store_mock.go github.com/molcalc/chemjobs/internal/core ArtifactStore

// SetIfNotExists, DeleteIfEquals
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=lock_repository_mock.go github.com/molcalc/chemjobs/internal/core LockRepository
