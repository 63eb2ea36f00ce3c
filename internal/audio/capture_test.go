package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DeviceIndex != -1 {
		t.Errorf("DefaultConfig().DeviceIndex = %d, want -1", cfg.DeviceIndex)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("DefaultConfig().SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.BufferSize != 512 {
		t.Errorf("DefaultConfig().BufferSize = %d, want 512", cfg.BufferSize)
	}
}

func TestNew(t *testing.T) {
	cfg := Config{
		DeviceIndex: 2,
		SampleRate:  44100,
		BufferSize:  1024,
	}

	capture := New(cfg)

	if capture == nil {
		t.Fatal("New() returned nil")
	}
	if capture.config != cfg {
		t.Errorf("capture.config = %+v, want %+v", capture.config, cfg)
	}
}

func TestCapture_IsRunning_InitialState(t *testing.T) {
	capture := New(DefaultConfig())

	if capture.IsRunning() {
		t.Error("IsRunning() = true for new capture, want false")
	}
}

func TestCapture_SetCallback(t *testing.T) {
	capture := New(DefaultConfig())

	capture.SetCallback(func(samples []float32) {})

	if capture.callbackPtr.Load() == nil {
		t.Error("SetCallback() did not set callback")
	}
}

func TestCapture_SetCallback_Nil(t *testing.T) {
	capture := New(DefaultConfig())

	capture.SetCallback(func(samples []float32) {})
	capture.SetCallback(nil)

	if capture.callbackPtr.Load() != nil {
		t.Error("SetCallback(nil) should clear callback")
	}
}

func TestCapture_ListDevices_NotInitialized(t *testing.T) {
	capture := New(DefaultConfig())

	_, err := capture.ListDevices()
	if err != ErrNotInitialized {
		t.Errorf("ListDevices() error = %v, want ErrNotInitialized", err)
	}
}

func TestCapture_DeviceNames_NotInitialized(t *testing.T) {
	capture := New(DefaultConfig())

	_, err := capture.DeviceNames()
	if err != ErrNotInitialized {
		t.Errorf("DeviceNames() error = %v, want ErrNotInitialized", err)
	}
}

func TestCapture_Start_NotInitialized(t *testing.T) {
	capture := New(DefaultConfig())

	err := capture.Start(context.Background())
	if err != ErrNotInitialized {
		t.Errorf("Start() error = %v, want ErrNotInitialized", err)
	}
}

func TestCapture_Start_AlreadyRunning(t *testing.T) {
	capture := New(DefaultConfig())

	// Simulate a running device without touching hardware.
	capture.running.Store(true)

	err := capture.Start(context.Background())
	if err != ErrAlreadyRunning {
		t.Errorf("Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestCapture_Stop_NotRunning(t *testing.T) {
	capture := New(DefaultConfig())

	err := capture.Stop()
	if err != ErrNotRunning {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
}

// startFakeSession marks capture running with a session watched on ctx
func startFakeSession(ctx context.Context, c *Capture) <-chan struct{} {
	done := make(chan struct{})
	c.mu.Lock()
	c.stopCh = done
	c.running.Store(true)
	c.mu.Unlock()

	exited := make(chan struct{})
	go func() {
		c.watchSession(ctx, done)
		close(exited)
	}()
	return exited
}

func TestCapture_Stop_EndsSessionWatcher(t *testing.T) {
	capture := New(DefaultConfig())
	exited := startFakeSession(context.Background(), capture)

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("session watcher still running after Stop")
	}
}

func TestCapture_Close_EndsSessionWatcher(t *testing.T) {
	capture := New(DefaultConfig())
	exited := startFakeSession(context.Background(), capture)

	if err := capture.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("session watcher still running after Close")
	}
}

func TestCapture_ContextCancelStopsSession(t *testing.T) {
	capture := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	exited := startFakeSession(ctx, capture)

	cancel()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("session watcher did not exit on cancel")
	}
	if capture.IsRunning() {
		t.Error("IsRunning() = true after context cancellation")
	}
}

func TestCapture_StaleSessionDoesNotStopNewSession(t *testing.T) {
	capture := New(DefaultConfig())
	oldCtx, cancelOld := context.WithCancel(context.Background())
	defer cancelOld()

	startFakeSession(oldCtx, capture)
	oldDone := capture.stopCh
	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	newExited := startFakeSession(context.Background(), capture)

	// The first session's context ends after a restart.
	cancelOld()
	capture.stopSession(oldDone)

	if !capture.IsRunning() {
		t.Fatal("cancelling an old session stopped the new one")
	}

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case <-newExited:
	case <-time.After(2 * time.Second):
		t.Fatal("new session watcher still running after Stop")
	}
}

func TestCapture_Close_NotInitialized(t *testing.T) {
	capture := New(DefaultConfig())

	if err := capture.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
	// Closing twice is harmless.
	if err := capture.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}

func TestCapture_OnFrames_DeliversSamples(t *testing.T) {
	capture := New(DefaultConfig())

	var got []float32
	capture.SetCallback(func(samples []float32) {
		got = append(got, samples...)
	})

	capture.onFrames(nil, encodeFloat32LE(0.5, -0.25, 1), 3)
	capture.onFrames(nil, encodeFloat32LE(0.125), 1)

	want := []float32{0.5, -0.25, 1, 0.125}
	if len(got) != len(want) {
		t.Fatalf("callback received %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCapture_OnFrames_EmptyInput(t *testing.T) {
	capture := New(DefaultConfig())

	called := false
	capture.SetCallback(func(samples []float32) { called = true })

	capture.onFrames(nil, nil, 0)

	if called {
		t.Error("callback invoked for empty input")
	}
}

func TestCapture_OnFrames_NoCallback(t *testing.T) {
	capture := New(DefaultConfig())

	// Must not panic.
	capture.onFrames(nil, encodeFloat32LE(0.5), 1)
}

func TestCapture_ConcurrentSetCallback(t *testing.T) {
	capture := New(DefaultConfig())
	data := encodeFloat32LE(0.1, 0.2, 0.3)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			capture.SetCallback(func([]float32) {})
			capture.SetCallback(nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			capture.onFrames(nil, data, 3)
		}
	}()
	wg.Wait()
}

func TestDecodeFloat32LE(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []float32
	}{
		{"empty", nil, nil},
		{"single", encodeFloat32LE(1.0), []float32{1.0}},
		{"multiple", encodeFloat32LE(0.5, -0.5, 0.25), []float32{0.5, -0.5, 0.25}},
		{"partial sample ignored", encodeFloat32LE(1.0)[:3], nil},
		{"trailing bytes ignored", append(encodeFloat32LE(1.0), 0xFF), []float32{1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeFloat32LE(nil, tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("decodeFloat32LE() length = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("decodeFloat32LE()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodeFloat32LE_SpecialValues(t *testing.T) {
	got := decodeFloat32LE(nil, encodeFloat32LE(
		float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN())))

	if !math.IsInf(float64(got[0]), 1) {
		t.Errorf("got[0] = %v, want +Inf", got[0])
	}
	if !math.IsInf(float64(got[1]), -1) {
		t.Errorf("got[1] = %v, want -Inf", got[1])
	}
	if !math.IsNaN(float64(got[2])) {
		t.Errorf("got[2] = %v, want NaN", got[2])
	}
}

func TestDecodeFloat32LE_ReusesBuffer(t *testing.T) {
	buf := make([]float32, 0, 8)
	data := encodeFloat32LE(1, 2, 3, 4)

	allocs := testing.AllocsPerRun(100, func() {
		buf = decodeFloat32LE(buf[:0], data)
	})
	if allocs != 0 {
		t.Errorf("decodeFloat32LE allocated %v times with sufficient capacity, want 0", allocs)
	}
}

func encodeFloat32LE(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func BenchmarkDecodeFloat32LE(b *testing.B) {
	data := make([]byte, 512*4)
	buf := make([]float32, 0, 512)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf = decodeFloat32LE(buf[:0], data)
	}
}
