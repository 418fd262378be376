package timer

import "time"

// Task is a scheduled one-shot callback
type Task interface {
	// Cancel prevents the task from running. It reports false if the task
	// already ran or was cancelled.
	Cancel() bool
}

// Scheduler runs a task once after a delay
type Scheduler interface {
	Schedule(delay time.Duration, task func()) Task
}

// AfterFuncScheduler schedules with time.AfterFunc
type AfterFuncScheduler struct{}

// Schedule implements Scheduler
func (AfterFuncScheduler) Schedule(delay time.Duration, task func()) Task {
	return afterFuncTask{t: time.AfterFunc(delay, task)}
}

type afterFuncTask struct {
	t *time.Timer
}

func (a afterFuncTask) Cancel() bool { return a.t.Stop() }
