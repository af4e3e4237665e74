package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	mu   sync.Mutex
	runs int
	errs []error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	if len(j.errs) > 0 {
		err := j.errs[0]
		j.errs = j.errs[1:]
		return err
	}
	return nil
}

func (j *countingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("five fields only", &countingJob{})

	require.Error(t, err)
}

func TestScheduleSurvivesFailingRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{errs: []error{errors.New("transient")}}

	require.NoError(t, s.AddJob("@every 50ms", job))
	s.Start()
	defer s.Stop()

	// First run fails; the schedule must keep firing afterwards.
	deadline := time.After(3 * time.Second)
	for job.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("job ran %d times, want at least 3", job.count())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.count())

	failing := &countingJob{errs: []error{errors.New("boom")}}
	assert.EqualError(t, s.RunNow(failing), "boom")
}

func TestStopWaitsForRunningJob(t *testing.T) {
	s := New(zerolog.Nop())
	var startOnce, doneOnce sync.Once
	started := make(chan struct{})
	done := make(chan struct{})
	job := &funcJob{name: "slow", fn: func() error {
		startOnce.Do(func() { close(started) })
		time.Sleep(100 * time.Millisecond)
		doneOnce.Do(func() { close(done) })
		return nil
	}}

	require.NoError(t, s.AddJob("@every 50ms", job))
	s.Start()
	<-started
	s.Stop()

	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the running job finished")
	}
}

type funcJob struct {
	name string
	fn   func() error
}

func (j *funcJob) Name() string { return j.name }
func (j *funcJob) Run() error   { return j.fn() }
