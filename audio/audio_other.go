//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo: %v", ErrDeviceUnavailable, err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	return &malgoCapture{
		ctx:    m.ctx,
		device: device,
		config: config.withDefaults(),
	}, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	ctx       *malgo.AllocatedContext
	device    *DeviceInfo
	config    CaptureConfig
	callbacks atomic.Pointer[Callbacks]

	mu      sync.Mutex
	dev     *malgo.Device
	stopped bool
}

// Start initializes and starts the malgo device. The device is created
// here rather than in NewCapture so that open failures surface at Start.
func (c *malgoCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = c.config.Channels
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.config.ChunkMs)

	if c.device != nil {
		idBytes, err := hex.DecodeString(c.device.ID)
		if err != nil {
			return fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	chunks := newChunker(c.config, func(chunk Chunk) {
		if cb := c.callbacks.Load(); cb != nil && cb.Data != nil {
			cb.Data(chunk)
		}
	})

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			chunks.write(data)
		},
		Stop: func() {
			c.mu.Lock()
			userStop := c.stopped
			c.mu.Unlock()
			if userStop {
				return
			}
			if cb := c.callbacks.Load(); cb != nil && cb.Error != nil {
				cb.Error(fmt.Errorf("%w: device stopped", ErrDeviceUnavailable))
			}
		},
	}

	dev, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return classifyStartErr(err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return classifyStartErr(err)
	}

	c.dev = dev
	c.stopped = false
	return nil
}

func (c *malgoCapture) Stop() {
	c.mu.Lock()
	if c.dev == nil || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	dev := c.dev
	c.mu.Unlock()
	// Stop outside the lock: malgo may fire the Stop callback
	// synchronously, which takes the same mutex.
	dev.Stop()
}

func (c *malgoCapture) Close() {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		c.dev.Uninit()
		c.dev = nil
	}
}

func (c *malgoCapture) SetCallbacks(cb Callbacks) {
	c.callbacks.Store(&cb)
}

func (c *malgoCapture) ClearCallbacks() {
	c.callbacks.Store(nil)
}

func (c *malgoCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}
