package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubLock struct {
	acquired bool
	acquires int
	releases int
	err      error
}

func (l *stubLock) Acquire(_ context.Context) (bool, error) {
	l.acquires++
	return l.acquired, l.err
}

func (l *stubLock) Release(_ context.Context) error {
	l.releases++
	return nil
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string              { return j.name }
func (j *countingJob) Run(_ context.Context) error { j.runs++; return j.err }

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "orphan-sweep"}
	lock := &stubLock{acquired: false}
	svc, err := NewService(ServiceParams{
		Logger:   sweepLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("job must not run without the lock")
	}
	if lock.releases != 0 {
		t.Fatal("unacquired lock must not be released")
	}
}

func TestRunCycleRunsAllJobsAndReleasesLock(t *testing.T) {
	first := &countingJob{name: "first", err: errors.New("boom")}
	second := &countingJob{name: "second"}
	lock := &stubLock{acquired: true}
	svc, err := NewService(ServiceParams{
		Logger:   sweepLogger(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("every job should run once, got %d/%d", first.runs, second.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("lock should be released once, got %d", lock.releases)
	}
}
