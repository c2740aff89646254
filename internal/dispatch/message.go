// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package dispatch

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TaskKind names the recurring task families the dispatcher schedules.
type TaskKind string

const (
	KindScan     TaskKind = "scan_next_region"
	KindValidate TaskKind = "validate_tokens"
	KindOptimize TaskKind = "optimize_frequency"
	KindStatus   TaskKind = "status"
)

// Topic returns the queue topic a kind is published on.
func (k TaskKind) Topic() string {
	switch k {
	case KindScan:
		return "svodka.tasks.scan"
	case KindValidate:
		return "svodka.tasks.validate"
	case KindOptimize:
		return "svodka.tasks.optimize"
	case KindStatus:
		return "svodka.tasks.status"
	}
	return "svodka.tasks.unknown"
}

// Job is the queue payload binding a dispatch decision to an execution.
// Scan jobs carry the carousel pairing; the other kinds carry only their
// schedule time.
type Job struct {
	Kind         TaskKind  `json:"kind"`
	TaskID       string    `json:"task_id,omitempty"`
	RegionID     int64     `json:"region_id,omitempty"`
	RegionCode   string    `json:"region_code,omitempty"`
	CredentialID int64     `json:"credential_id,omitempty"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}

// IdempotencyKey identifies a job at minute granularity. Re-dispatching
// the same (kind, region, minute) is a duplicate and is skipped.
func (j *Job) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", j.Kind, j.RegionCode, j.ScheduledAt.Truncate(time.Minute).Unix())
}

// Message serializes the job for the queue.
func (j *Job) Message() (*message.Message, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("kind", string(j.Kind))
	return msg, nil
}

// decodeJob parses a queue message back into a job.
func decodeJob(msg *message.Message) (*Job, error) {
	var j Job
	if err := json.Unmarshal(msg.Payload, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", msg.UUID, err)
	}
	return &j, nil
}
