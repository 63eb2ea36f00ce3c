// internal/audio/capture.go
// Package audio delivers mono float32 sample buffers from a live capture
// device or a WAV file to a SampleCallback.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio capture not initialized")
	ErrAlreadyRunning = errors.New("audio capture already running")
	ErrNotRunning     = errors.New("audio capture not running")
)

// Config holds audio capture configuration. Capture is always mono.
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 48000
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns the capture defaults used by the CLI
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		BufferSize:  512,
	}
}

// SampleCallback is called with each buffer of samples, in order.
// For live capture it runs on the audio thread: it must be non-blocking
// and must not retain the slice after returning.
type SampleCallback func(samples []float32)

// Capture reads mono float32 audio from a capture device via miniaudio.
type Capture struct {
	config Config

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	running     atomic.Bool
	callbackPtr atomic.Pointer[SampleCallback]

	// stopCh is closed when the current session stops
	stopCh chan struct{}

	// scratch is only touched from the audio thread
	scratch []float32
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{config: cfg}
}

// SetCallback sets the callback receiving captured buffers.
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.callbackPtr.Store(nil)
	} else {
		c.callbackPtr.Store(&cb)
	}
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx
	return nil
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]malgo.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listDevicesLocked()
}

func (c *Capture) listDevicesLocked() ([]malgo.DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrNotInitialized
	}
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	return infos, nil
}

// DeviceNames returns the capture device names in index order
func (c *Capture) DeviceNames() ([]string, error) {
	infos, err := c.ListDevices()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

// Start begins audio capture. Capture stops when ctx is cancelled.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.ctx == nil {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInFrames = c.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1

	if c.config.DeviceIndex >= 0 {
		devices, err := c.listDevicesLocked()
		if err != nil {
			return err
		}
		if c.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				c.config.DeviceIndex, len(devices))
		}
		deviceConfig.Capture.DeviceID = devices[c.config.DeviceIndex].ID.Pointer()
	}

	c.scratch = make([]float32, 0, c.config.BufferSize)

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onFrames,
	})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	done := make(chan struct{})
	c.stopCh = done
	go c.watchSession(ctx, done)

	return nil
}

// watchSession stops the session owning done when ctx is cancelled. It
// returns once the session stops for any reason.
func (c *Capture) watchSession(ctx context.Context, done chan struct{}) {
	select {
	case <-ctx.Done():
		c.stopSession(done)
	case <-done:
	}
}

// stopSession stops capture only if done still belongs to the running session.
func (c *Capture) stopSession(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() && c.stopCh == done {
		c.stopLocked()
	}
}

// onFrames runs on the audio thread.
func (c *Capture) onFrames(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	c.scratch = decodeFloat32LE(c.scratch[:0], input)

	if cbPtr := c.callbackPtr.Load(); cbPtr != nil {
		(*cbPtr)(c.scratch)
	}
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return ErrNotRunning
	}
	c.stopLocked()
	return nil
}

func (c *Capture) stopLocked() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.running.Store(false)
}

// Close releases all audio resources
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		c.stopLocked()
	}

	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	return c.running.Load()
}

// decodeFloat32LE appends the little-endian float32 samples in data to dst.
// Trailing bytes that do not form a whole sample are ignored.
func decodeFloat32LE(dst []float32, data []byte) []float32 {
	for i := 0; i+4 <= len(data); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}
	return dst
}
