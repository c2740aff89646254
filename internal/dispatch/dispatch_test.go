// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/okrugmedia/svodka/internal/carousel"
	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/store"
)

func TestTaskKindTopic(t *testing.T) {
	tests := []struct {
		kind TaskKind
		want string
	}{
		{KindScan, "svodka.tasks.scan"},
		{KindValidate, "svodka.tasks.validate"},
		{KindOptimize, "svodka.tasks.optimize"},
		{KindStatus, "svodka.tasks.status"},
		{TaskKind("bogus"), "svodka.tasks.unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.Topic(); got != tt.want {
			t.Errorf("Topic(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestJobMessageRoundTrip(t *testing.T) {
	job := &Job{
		Kind:         KindScan,
		TaskID:       "task-1",
		RegionID:     7,
		RegionCode:   "okr-07",
		CredentialID: 3,
		ScheduledAt:  time.Date(2026, 8, 24, 12, 30, 45, 0, time.UTC),
	}
	msg, err := job.Message()
	if err != nil {
		t.Fatal(err)
	}
	if msg.UUID == "" {
		t.Error("message without uuid")
	}
	if msg.Metadata.Get("kind") != string(KindScan) {
		t.Errorf("kind metadata = %q", msg.Metadata.Get("kind"))
	}

	decoded, err := decodeJob(msg)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Kind != job.Kind || decoded.TaskID != job.TaskID ||
		decoded.RegionID != job.RegionID || decoded.RegionCode != job.RegionCode ||
		decoded.CredentialID != job.CredentialID {
		t.Errorf("decoded = %+v, want %+v", decoded, job)
	}
	if !decoded.ScheduledAt.Equal(job.ScheduledAt) {
		t.Errorf("scheduled at %v, want %v", decoded.ScheduledAt, job.ScheduledAt)
	}
}

func TestDecodeJobMalformed(t *testing.T) {
	msg := message.NewMessage("bad", []byte("{not json"))
	if _, err := decodeJob(msg); err == nil {
		t.Error("malformed payload decoded")
	}
}

func TestIdempotencyKeyMinuteGranularity(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 30, 5, 0, time.UTC)
	a := Job{Kind: KindScan, RegionCode: "okr-01", ScheduledAt: base}
	b := Job{Kind: KindScan, RegionCode: "okr-01", ScheduledAt: base.Add(40 * time.Second)}
	if a.IdempotencyKey() != b.IdempotencyKey() {
		t.Errorf("same minute keys differ: %q vs %q", a.IdempotencyKey(), b.IdempotencyKey())
	}

	c := Job{Kind: KindScan, RegionCode: "okr-01", ScheduledAt: base.Add(time.Minute)}
	if a.IdempotencyKey() == c.IdempotencyKey() {
		t.Error("cross-minute keys collide")
	}

	d := Job{Kind: KindScan, RegionCode: "okr-02", ScheduledAt: base}
	if a.IdempotencyKey() == d.IdempotencyKey() {
		t.Error("cross-region keys collide")
	}

	e := Job{Kind: KindValidate, RegionCode: "okr-01", ScheduledAt: base}
	if a.IdempotencyKey() == e.IdempotencyKey() {
		t.Error("cross-kind keys collide")
	}
}

func dispatcherEnv(t *testing.T) (*Dispatcher, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	region := models.Region{Code: "okr-01", Name: "Первый округ", IsActive: true}
	if err := st.CreateRegion(ctx, &region); err != nil {
		t.Fatal(err)
	}
	cred := models.Credential{Name: "anna", Secret: "s", IsActive: true, Status: models.CredentialValid}
	if err := st.CreateCredential(ctx, &cred); err != nil {
		t.Fatal(err)
	}

	transport := NewChannelTransport(watermill.NopLogger{})
	t.Cleanup(func() { transport.Close() })
	scheduler := carousel.New(st, carousel.Config{})
	d := New(Config{}, st, scheduler, nil, transport)
	return d, st
}

func TestDispatchScanCreatesTaskAndPublishes(t *testing.T) {
	d, st := dispatcherEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := d.transport.Subscriber.Subscribe(ctx, KindScan.Topic())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	if err := d.dispatchScan(ctx, now); err != nil {
		t.Fatal(err)
	}

	var msg *message.Message
	select {
	case msg = <-msgs:
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no job published")
	}

	job, err := decodeJob(msg)
	if err != nil {
		t.Fatal(err)
	}
	if job.Kind != KindScan || job.RegionCode != "okr-01" {
		t.Errorf("job = %+v", job)
	}

	// The task record exists before the worker sees the job.
	task, err := st.GetTask(ctx, job.TaskID)
	if err != nil {
		t.Fatalf("task record missing: %v", err)
	}
	if task.State != models.TaskQueued {
		t.Errorf("task state = %q", task.State)
	}

	// The claim stays held until a worker releases it.
	if d.scheduler.Running() != 1 {
		t.Errorf("running = %d, want 1", d.scheduler.Running())
	}
}

func TestDispatchScanDeduplicatesSameMinute(t *testing.T) {
	d, st := dispatcherEnv(t)
	ctx := context.Background()
	now := time.Now()

	if err := d.dispatchScan(ctx, now); err != nil {
		t.Fatal(err)
	}
	tasks, err := st.ListTasksSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks after first dispatch", len(tasks))
	}

	// Free the claim without moving the last-scan stamp, so the carousel
	// offers the same pairing again within the same minute.
	d.scheduler.Release(tasks[0].RegionID, tasks[0].CredentialID, time.Time{})

	if err := d.dispatchScan(ctx, now.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	tasks, err = st.ListTasksSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Errorf("duplicate dispatch created %d tasks", len(tasks))
	}
	// The duplicate path releases its claim immediately.
	if d.scheduler.Running() != 0 {
		t.Errorf("running = %d after duplicate skip", d.scheduler.Running())
	}
}

func TestDispatchScanNoWorkIsQuiet(t *testing.T) {
	st := store.NewMemory()
	transport := NewChannelTransport(watermill.NopLogger{})
	t.Cleanup(func() { transport.Close() })
	d := New(Config{}, st, carousel.New(st, carousel.Config{}), nil, transport)

	if err := d.dispatchScan(context.Background(), time.Now()); err != nil {
		t.Fatalf("empty carousel errored: %v", err)
	}
}

func TestHandleScanDropsMalformedJob(t *testing.T) {
	d, _ := dispatcherEnv(t)
	msg := message.NewMessage("bad", []byte("{not json"))
	msg.SetContext(context.Background())
	if err := d.handleScan(msg); err != nil {
		t.Errorf("malformed job requeued: %v", err)
	}
}

func TestHandleScanSkipsFinishedTask(t *testing.T) {
	d, st := dispatcherEnv(t)
	ctx := context.Background()

	task := models.CarouselTask{ID: "done", State: models.TaskCompleted, QueuedAt: time.Now()}
	if err := st.CreateTask(ctx, &task); err != nil {
		t.Fatal(err)
	}
	job := &Job{Kind: KindScan, TaskID: "done", ScheduledAt: time.Now()}
	msg, err := job.Message()
	if err != nil {
		t.Fatal(err)
	}
	msg.SetContext(ctx)

	// A redelivered finished task is acked without re-running the scan.
	if err := d.handleScan(msg); err != nil {
		t.Errorf("redelivery requeued: %v", err)
	}
}

func TestRouterWiresAllWorkers(t *testing.T) {
	d, _ := dispatcherEnv(t)
	router, err := d.Router()
	if err != nil {
		t.Fatal(err)
	}
	if router == nil {
		t.Fatal("nil router")
	}
	if err := router.Close(); err != nil {
		t.Errorf("router close: %v", err)
	}
}
