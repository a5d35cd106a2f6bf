package jobstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "jobs", "prefetch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newJob(id string, created time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusQueued,
		Params:    JobParams{Tiles: []string{"a", "b"}, Years: []int{2022, 2024}, Formats: []string{"png"}},
		Progress:  JobProgress{Phase: "queued", Total: 6},
		CreatedAt: created,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateJob(newJob("j1", created)))

	job, err := s.GetJob("j1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, []string{"a", "b"}, job.Params.Tiles)
	assert.Equal(t, []int{2022, 2024}, job.Params.Years)
	assert.Equal(t, 6, job.Progress.Total)
	assert.True(t, created.Equal(job.CreatedAt))
	assert.Nil(t, job.StartedAt)

	missing, err := s.GetJob("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateJob(newJob("j1", time.Now())))

	require.NoError(t, s.UpdateJobStarted("j1"))
	require.NoError(t, s.UpdateJobProgress("j1", JobProgress{Phase: "imagery", Done: 4, Total: 6, Failed: 1}))

	job, err := s.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, JobProgress{Phase: "imagery", Done: 4, Total: 6, Failed: 1}, job.Progress)

	require.NoError(t, s.UpdateJobStatus("j1", JobStatusCompleted, ""))
	job, err = s.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.FinishedAt)
}

func TestStore_RestartRecovery(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Minute)
	require.NoError(t, s.CreateJob(newJob("queued-2", base.Add(2*time.Second))))
	require.NoError(t, s.CreateJob(newJob("queued-1", base.Add(time.Second))))
	require.NoError(t, s.CreateJob(newJob("running", base)))
	require.NoError(t, s.UpdateJobStarted("running"))

	require.NoError(t, s.MarkRunningAsFailed("server restarted"))
	job, err := s.GetJob("running")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "server restarted", job.Error)

	queued, err := s.ListQueuedJobs()
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "queued-1", queued[0].ID)
	assert.Equal(t, "queued-2", queued[1].ID)

	all, err := s.ListJobs(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "queued-2", all[0].ID)
}

func TestStore_DeleteExpiredAndDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateJob(newJob("done", time.Now())))
	require.NoError(t, s.CreateJob(newJob("pending", time.Now())))
	require.NoError(t, s.UpdateJobStatus("done", JobStatusCancelled, "cancelled"))

	n, err := s.DeleteExpiredJobs(1)
	require.NoError(t, err)
	assert.Zero(t, n, "recently finished jobs are retained")

	n, err = s.DeleteExpiredJobs(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.DeleteJob("pending"))
	job, err := s.GetJob("pending")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestStore_InMemory(t *testing.T) {
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateJob(newJob("j", time.Now())))
	job, err := s.GetJob("j")
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}
