// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockServer implements HTTPServer.
type mockServer struct {
	listenErr   error
	shutdownErr error
	shutdowns   atomic.Int32
	release     chan struct{}
}

func newMockServer() *mockServer {
	return &mockServer{release: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.release
	return nil
}

func (m *mockServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newMockServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if got := server.shutdowns.Load(); got != 1 {
		t.Errorf("shutdown calls = %d, want 1", got)
	}
}

func TestHTTPServiceStartupFailure(t *testing.T) {
	server := newMockServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve returned %v, want wrapped listen error", err)
	}
}

// blockingRunner records the context it was run with and blocks until
// cancellation.
type blockingRunner struct {
	started chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context) {
	close(b.started)
	<-ctx.Done()
}

func (b *blockingRunner) RunMaintenance(ctx context.Context) {
	b.Run(ctx)
}

func TestWarmingServiceStopsOnCancel(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	svc := NewWarmingService(runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-runner.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestMaintenanceServiceStopsOnCancel(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	svc := NewMaintenanceService(runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-runner.started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

// failingPipeline returns a scripted error from Run.
type failingPipeline struct {
	err error
}

func (f *failingPipeline) Run(context.Context) error {
	return f.err
}

func TestEnrichmentServicePropagatesRunError(t *testing.T) {
	wantErr := errors.New("subscriber closed")
	svc := NewEnrichmentService(&failingPipeline{err: wantErr})

	if err := svc.Serve(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Serve returned %v, want %v", err, wantErr)
	}
}
