package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	"github.com/molcalc/chemjobs/internal/mocks"
)

const cancelJobID = "5d7c3a8e-2f64-4b8c-9d1e-7a3f2c6b9e10"

func TestNewCancelService(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := NewCancelService(CancelServiceOptions{Gateway: mocks.NewMockClusterGateway(ctrl)})
	require.Error(t, err)
	_, err = NewCancelService(CancelServiceOptions{Repo: mocks.NewMockJobRepository(ctrl)})
	require.Error(t, err)
}

func TestCancelService_Cancel(t *testing.T) {
	t.Run("running job is cancelled remotely then recorded", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		gw := mocks.NewMockClusterGateway(ctrl)

		running := newJob(cancelJobID, model.JobStatusRunning)
		running.Started = ts(-time.Hour)

		gomock.InOrder(
			repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(running, nil),
			gw.EXPECT().Cancel(gomock.Any(), cluster.CancelRequest{JobID: cancelJobID}).
				Return(cluster.Ack{Status: cluster.StatusSuccess}, nil),
			repo.EXPECT().Update(gomock.Any(), cancelJobID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ string, upd model.JobUpdate) (*model.Job, error) {
					require.NotNil(t, upd.Status)
					assert.Equal(t, model.JobStatusCancelled, *upd.Status)
					require.NotNil(t, upd.Finished)
					assert.True(t, upd.Finished.Equal(testEpoch))
					assert.Nil(t, upd.Started)
					return upd.ApplyTo(running)
				}),
		)

		svc, err := NewCancelService(CancelServiceOptions{Repo: repo, Gateway: gw, Clock: fixedClock})
		require.NoError(t, err)

		job, err := svc.Cancel(context.Background(), cancelJobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, job.Status)
	})

	t.Run("terminal job is refused without contacting the cluster", func(t *testing.T) {
		for _, st := range model.TerminalStatuses() {
			t.Run(string(st), func(t *testing.T) {
				ctrl := gomock.NewController(t)
				repo := mocks.NewMockJobRepository(ctrl)
				gw := mocks.NewMockClusterGateway(ctrl)
				repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(newJob(cancelJobID, st), nil)

				svc, err := NewCancelService(CancelServiceOptions{Repo: repo, Gateway: gw})
				require.NoError(t, err)

				_, err = svc.Cancel(context.Background(), cancelJobID)
				require.ErrorIs(t, err, model.ErrJobTerminal)
			})
		}
	})

	t.Run("remote rejection leaves the row untouched", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		gw := mocks.NewMockClusterGateway(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(newJob(cancelJobID, model.JobStatusSubmitted), nil)
		gw.EXPECT().Cancel(gomock.Any(), gomock.Any()).
			Return(cluster.Ack{Status: "ERROR", Message: "unknown job"}, nil)

		svc, err := NewCancelService(CancelServiceOptions{Repo: repo, Gateway: gw})
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), cancelJobID)
		require.ErrorIs(t, err, cluster.ErrRejected)
		assert.Contains(t, err.Error(), "unknown job")
	})

	t.Run("transport failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		gw := mocks.NewMockClusterGateway(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(newJob(cancelJobID, model.JobStatusRunning), nil)
		gw.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(cluster.Ack{}, errors.New("dial tcp: timeout"))

		svc, err := NewCancelService(CancelServiceOptions{Repo: repo, Gateway: gw})
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), cancelJobID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote cancel")
	})

	t.Run("reconcile write landing first wins", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		gw := mocks.NewMockClusterGateway(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(newJob(cancelJobID, model.JobStatusRunning), nil)
		gw.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(cluster.Ack{Status: cluster.StatusSuccess}, nil)
		repo.EXPECT().Update(gomock.Any(), cancelJobID, gomock.Any()).Return(nil, model.ErrJobTerminal)

		svc, err := NewCancelService(CancelServiceOptions{Repo: repo, Gateway: gw})
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), cancelJobID)
		require.ErrorIs(t, err, model.ErrJobTerminal)
	})

	t.Run("held job lock reports busy", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		gw := mocks.NewMockClusterGateway(ctrl)
		locks := mocks.NewMockLockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(newJob(cancelJobID, model.JobStatusRunning), nil)
		locks.EXPECT().SetIfNotExists(gomock.Any(), JobLockKey(cancelJobID), gomock.Any(), 10*time.Minute).Return(false, nil)

		svc, err := NewCancelService(CancelServiceOptions{
			Repo:    repo,
			Gateway: gw,
			Locker:  NewJobLocker(locks, 0, nil),
		})
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), cancelJobID)
		require.ErrorIs(t, err, ErrJobBusy)
		assert.True(t, IsJobBusy(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), cancelJobID).Return(nil, model.ErrJobNotFound)

		svc, err := NewCancelService(CancelServiceOptions{Repo: repo, Gateway: mocks.NewMockClusterGateway(ctrl)})
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), cancelJobID)
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}
