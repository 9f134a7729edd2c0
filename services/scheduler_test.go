package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) Run(context.Context) (int, error) {
	j.runs.Add(1)
	return 0, nil
}

func TestStartRetentionSchedulerRunsJob(t *testing.T) {
	job := &countingJob{}
	sched, err := StartRetentionScheduler(context.Background(), job, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown() })

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.Len(t, sched.Jobs(), 1)
	assert.Equal(t, "visit-retention", sched.Jobs()[0].Name())
}

func TestStartRetentionSchedulerRejectsBadInterval(t *testing.T) {
	_, err := StartRetentionScheduler(context.Background(), &countingJob{}, 0)
	assert.Error(t, err)
}
