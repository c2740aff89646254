// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import (
	"fmt"
	"time"
)

// TaskState is the lifecycle state of a carousel task. Transitions are
// linear: queued -> running -> completed | failed. Terminal states are
// immutable.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// validTaskTransitions encodes the linear state machine.
var validTaskTransitions = map[TaskState][]TaskState{
	TaskQueued:  {TaskRunning, TaskFailed},
	TaskRunning: {TaskCompleted, TaskFailed},
}

// CarouselTask is one scheduled scan of (region, credential).
type CarouselTask struct {
	ID           string     `json:"id" db:"id"`
	RegionID     int64      `json:"region_id" db:"region_id"`
	RegionCode   string     `json:"region_code" db:"region_code"`
	CredentialID int64      `json:"credential_id" db:"credential_id"`
	State        TaskState  `json:"state" db:"state"`
	QueuedAt     time.Time  `json:"queued_at" db:"queued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	PostsFound   int        `json:"posts_found" db:"posts_found"`
	PostsKept    int        `json:"posts_kept" db:"posts_kept"`
	Error        string     `json:"error,omitempty" db:"error"`
}

// Transition moves the task to the next state, stamping the relevant
// timestamp. Invalid transitions are refused.
func (t *CarouselTask) Transition(next TaskState, now time.Time) error {
	for _, allowed := range validTaskTransitions[t.State] {
		if next == allowed {
			t.State = next
			switch next {
			case TaskRunning:
				at := now
				t.StartedAt = &at
			case TaskCompleted, TaskFailed:
				at := now
				t.FinishedAt = &at
			}
			return nil
		}
	}
	return fmt.Errorf("task %s: invalid transition %s -> %s", t.ID, t.State, next)
}

// Fail moves the task to failed with a reason. Calling Fail on a terminal
// task is refused.
func (t *CarouselTask) Fail(reason string, now time.Time) error {
	if err := t.Transition(TaskFailed, now); err != nil {
		return err
	}
	t.Error = reason
	return nil
}
