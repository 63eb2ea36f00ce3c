//go:build integration

package audio

import (
	"context"
	"testing"
	"time"
)

// These tests require actual audio hardware and are skipped by default.
// Run with: go test -tags=integration ./internal/audio

func TestCapture_Init_Integration(t *testing.T) {
	capture := New(DefaultConfig())
	defer capture.Close()

	if err := capture.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if capture.ctx == nil {
		t.Error("Init() did not set context")
	}
}

func TestCapture_DeviceNames_Integration(t *testing.T) {
	capture := New(DefaultConfig())
	defer capture.Close()

	if err := capture.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	names, err := capture.DeviceNames()
	if err != nil {
		t.Fatalf("DeviceNames() error = %v", err)
	}

	t.Logf("Found %d capture devices:", len(names))
	for i, name := range names {
		t.Logf("  [%d] %s", i, name)
	}
}

func TestCapture_Callback_Integration(t *testing.T) {
	capture := New(DefaultConfig())
	defer capture.Close()

	if err := capture.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	received := make(chan int, 1)
	capture.SetCallback(func(samples []float32) {
		select {
		case received <- len(samples):
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := capture.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case n := <-received:
		if n == 0 {
			t.Error("Received empty sample buffer")
		}
	case <-ctx.Done():
		t.Error("Timeout waiting for callback")
	}
}

func TestCapture_ContextCancellation_Integration(t *testing.T) {
	capture := New(DefaultConfig())
	defer capture.Close()

	if err := capture.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := capture.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !capture.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	if capture.IsRunning() {
		t.Error("IsRunning() = true after context cancellation")
	}
}
