// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceFunc(t *testing.T) {
	var ran atomic.Bool
	svc := ServiceFunc{
		Name: "probe",
		Run: func(ctx context.Context) error {
			ran.Store(true)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	if svc.String() != "probe" {
		t.Errorf("name = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if !ran.Load() {
		t.Error("service never ran")
	}
}

func TestTreeRunsAllLayers(t *testing.T) {
	tree := NewTree(nopLogger(), TreeConfig{})

	var ingest, output, ops atomic.Bool
	mark := func(flag *atomic.Bool) ServiceFunc {
		return ServiceFunc{
			Name: "mark",
			Run: func(ctx context.Context) error {
				flag.Store(true)
				<-ctx.Done()
				return ctx.Err()
			},
		}
	}
	tree.AddIngest(mark(&ingest))
	tree.AddOutput(mark(&output))
	tree.AddOps(mark(&ops))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Root().Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for !(ingest.Load() && output.Load() && ops.Load()) {
		select {
		case <-deadline:
			t.Fatalf("layers not all started: ingest=%v output=%v ops=%v",
				ingest.Load(), output.Load(), ops.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not shut down")
	}
}

func TestTreeRestartsCrashedService(t *testing.T) {
	tree := NewTree(nopLogger(), TreeConfig{})

	var starts atomic.Int32
	tree.AddIngest(ServiceFunc{
		Name: "flaky",
		Run: func(ctx context.Context) error {
			if starts.Add(1) == 1 {
				return nil // crash once, then hold
			}
			<-ctx.Done()
			return ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tree.Root().Serve(ctx)

	deadline := time.After(3 * time.Second)
	for starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("service restarted %d times, want at least 2 starts", starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMetricsService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	svc := MetricsService{Addr: addr}
	if svc.String() != "metrics-listener" {
		t.Errorf("name = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("metrics endpoint unreachable: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("serve err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("metrics service did not stop")
	}
}
