// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package carousel

import (
	"context"
	"testing"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/store"
)

func schedulerEnv(t *testing.T, cfg Config, regionCodes, credNames []string) (*Scheduler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	for _, code := range regionCodes {
		r := models.Region{Code: code, Name: code, IsActive: true}
		if err := st.CreateRegion(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range credNames {
		c := models.Credential{
			Name:     name,
			Secret:   "vk1.a." + name,
			IsActive: true,
			Status:   models.CredentialValid,
		}
		if err := st.CreateCredential(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}
	return New(st, cfg), st
}

func TestNextPicksLongestIdleRegion(t *testing.T) {
	s, _ := schedulerEnv(t, Config{MinInterval: time.Hour}, []string{"okr-01", "okr-02", "okr-03"}, []string{"anna"})
	ctx := context.Background()
	now := time.Now()

	// Fresh scheduler: every region looks idle, code order breaks the tie.
	d, err := s.Next(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Region.Code != "okr-01" {
		t.Fatalf("first pick = %+v, want okr-01", d)
	}
	s.Release(d.Region.ID, d.Credential.ID, now)

	// okr-01 just scanned, the next pick rotates on.
	d, err = s.Next(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Region.Code != "okr-02" {
		t.Fatalf("second pick = %+v, want okr-02", d)
	}
	s.Release(d.Region.ID, d.Credential.ID, now.Add(time.Minute))

	// Within the pace interval only okr-03 remains due.
	d, err = s.Next(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Region.Code != "okr-03" {
		t.Fatalf("third pick = %+v, want okr-03", d)
	}
	s.Release(d.Region.ID, d.Credential.ID, now.Add(2*time.Minute))

	// All regions scanned within the hour: no work.
	d, err = s.Next(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("pick inside pace interval: %+v", d)
	}
}

func TestNextPairsLeastRecentlyUsedCredential(t *testing.T) {
	s, st := schedulerEnv(t, Config{MinInterval: time.Hour, MaxConcurrentScans: 3},
		[]string{"okr-01", "okr-02", "okr-03"}, []string{"boris", "anna", "vera"})
	ctx := context.Background()
	now := time.Now()

	used := now.Add(-10 * time.Minute)
	creds, _ := st.ListCredentials(ctx)
	for _, c := range creds {
		if c.Name == "boris" {
			st.TouchCredentialUsed(ctx, c.ID, used)
		}
	}

	// Never-used credentials win over a recently used one; names break the
	// tie among the never-used.
	d, err := s.Next(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Credential.Name != "anna" {
		t.Fatalf("pick = %+v, want credential anna", d)
	}

	d, err = s.Next(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Credential.Name != "vera" {
		t.Fatalf("pick = %+v, want credential vera", d)
	}

	d, err = s.Next(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Credential.Name != "boris" {
		t.Fatalf("pick = %+v, want credential boris last", d)
	}
}

func TestNextSkipsIneligibleCredentials(t *testing.T) {
	s, st := schedulerEnv(t, Config{}, []string{"okr-01"}, []string{"anna"})
	ctx := context.Background()

	creds, _ := st.ListCredentials(ctx)
	st.SetCredentialStatus(ctx, creds[0].ID, models.CredentialInvalid, "token invalid", nil)

	d, err := s.Next(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("scan paired with invalid credential: %+v", d)
	}
}

func TestNextHonorsConcurrencyCap(t *testing.T) {
	s, _ := schedulerEnv(t, Config{MaxConcurrentScans: 1},
		[]string{"okr-01", "okr-02"}, []string{"anna", "boris"})
	ctx := context.Background()
	now := time.Now()

	d1, err := s.Next(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if d1 == nil {
		t.Fatal("no first claim")
	}
	if s.Running() != 1 {
		t.Errorf("running = %d", s.Running())
	}

	d2, err := s.Next(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if d2 != nil {
		t.Fatalf("cap ignored: %+v", d2)
	}

	s.Release(d1.Region.ID, d1.Credential.ID, now)
	if s.Running() != 0 {
		t.Errorf("running after release = %d", s.Running())
	}
	if d, _ := s.Next(ctx, now); d == nil {
		t.Error("no claim after release")
	}
}

func TestNextDoesNotDoubleBookRunningRegion(t *testing.T) {
	s, _ := schedulerEnv(t, Config{MaxConcurrentScans: 5},
		[]string{"okr-01"}, []string{"anna", "boris"})
	ctx := context.Background()
	now := time.Now()

	if d, _ := s.Next(ctx, now); d == nil {
		t.Fatal("no first claim")
	}
	if d, _ := s.Next(ctx, now); d != nil {
		t.Errorf("region double-booked: %+v", d)
	}
}

func TestDecisionTask(t *testing.T) {
	now := time.Now()
	d := Decision{
		Region:     models.Region{ID: 7, Code: "okr-07"},
		Credential: models.Credential{ID: 3, Name: "anna"},
	}
	task := d.Task(now)
	if task.ID == "" {
		t.Error("task without id")
	}
	if task.RegionID != 7 || task.RegionCode != "okr-07" || task.CredentialID != 3 {
		t.Errorf("task = %+v", task)
	}
	if task.State != models.TaskQueued || !task.QueuedAt.Equal(now) {
		t.Errorf("task state = %+v", task)
	}
}

func TestTuneSlowsLowYield(t *testing.T) {
	s, st := schedulerEnv(t, Config{MinInterval: 60 * time.Minute}, nil, nil)
	ctx := context.Background()
	now := time.Now()

	seedCompletedTasks(t, st, now, []int{1, 2, 3})
	if err := s.Tune(ctx, now); err != nil {
		t.Fatal(err)
	}
	if got := s.MinInterval(); got != 75*time.Minute {
		t.Errorf("interval = %v, want 75m", got)
	}

	// Repeated starvation converges on the ceiling.
	for i := 0; i < 10; i++ {
		if err := s.Tune(ctx, now); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.MinInterval(); got != 240*time.Minute {
		t.Errorf("interval = %v, want ceiling 240m", got)
	}
}

func TestTuneSpeedsHighYield(t *testing.T) {
	s, st := schedulerEnv(t, Config{MinInterval: 60 * time.Minute}, nil, nil)
	ctx := context.Background()
	now := time.Now()

	seedCompletedTasks(t, st, now, []int{40, 50, 60})
	if err := s.Tune(ctx, now); err != nil {
		t.Fatal(err)
	}
	if got := s.MinInterval(); got != 48*time.Minute {
		t.Errorf("interval = %v, want 48m", got)
	}

	for i := 0; i < 20; i++ {
		if err := s.Tune(ctx, now); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.MinInterval(); got != 15*time.Minute {
		t.Errorf("interval = %v, want floor 15m", got)
	}
}

func TestTuneHoldsSteadyYield(t *testing.T) {
	s, st := schedulerEnv(t, Config{MinInterval: 60 * time.Minute}, nil, nil)
	ctx := context.Background()
	now := time.Now()

	seedCompletedTasks(t, st, now, []int{10, 15, 20})
	if err := s.Tune(ctx, now); err != nil {
		t.Fatal(err)
	}
	if got := s.MinInterval(); got != 60*time.Minute {
		t.Errorf("interval = %v, want unchanged 60m", got)
	}
}

func TestTuneIgnoresStaleAndUnfinishedTasks(t *testing.T) {
	s, st := schedulerEnv(t, Config{MinInterval: 60 * time.Minute}, nil, nil)
	ctx := context.Background()
	now := time.Now()

	// Only a stale completed task and a fresh queued one: nothing to tune on.
	old := models.CarouselTask{
		ID: "stale", State: models.TaskCompleted, PostsFound: 1,
		QueuedAt: now.Add(-48 * time.Hour),
	}
	if err := st.CreateTask(ctx, &old); err != nil {
		t.Fatal(err)
	}
	fresh := models.CarouselTask{ID: "queued", State: models.TaskQueued, QueuedAt: now}
	if err := st.CreateTask(ctx, &fresh); err != nil {
		t.Fatal(err)
	}

	if err := s.Tune(ctx, now); err != nil {
		t.Fatal(err)
	}
	if got := s.MinInterval(); got != 60*time.Minute {
		t.Errorf("interval = %v, want unchanged 60m", got)
	}
}

func TestMedian(t *testing.T) {
	if m := median([]int{3, 1, 2}); m != 2 {
		t.Errorf("odd median = %d", m)
	}
	if m := median([]int{4, 1, 2, 3}); m != 2 {
		t.Errorf("even median = %d", m)
	}
	if m := median([]int{7}); m != 7 {
		t.Errorf("single median = %d", m)
	}
}

func seedCompletedTasks(t *testing.T, st *store.Memory, now time.Time, yields []int) {
	t.Helper()
	for i, y := range yields {
		task := models.CarouselTask{
			ID:         "task-" + string(rune('a'+i)),
			State:      models.TaskCompleted,
			PostsFound: y,
			QueuedAt:   now.Add(-time.Hour),
		}
		if err := st.CreateTask(context.Background(), &task); err != nil {
			t.Fatal(err)
		}
	}
}
