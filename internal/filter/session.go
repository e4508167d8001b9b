package filter

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// DefaultPreference tries accelerators before general-purpose processors.
var DefaultPreference = []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU}

type releaser interface {
	Release()
}

// Session is a selected device together with the context scoped to it. It
// owns every long-lived object created through it and releases them in
// reverse creation order on Close, followed by the context.
type Session struct {
	driver   string
	platform cl.PlatformInfo
	device   cl.Device
	info     cl.DeviceInfo
	ctx      cl.Context

	mu     sync.Mutex
	owned  []releaser
	closed bool
}

// Select picks the first device with image support on the first platform,
// trying device classes in the order given by prefer (DefaultPreference
// when empty). Only the chosen device gets a context.
func Select(driver cl.Driver, prefer []cl.DeviceType) (*Session, error) {
	if len(prefer) == 0 {
		prefer = DefaultPreference
	}

	platforms, err := driver.Platforms()
	if err != nil {
		return nil, &NoPlatformError{Driver: driver.Name(), Err: err}
	}
	if len(platforms) == 0 {
		return nil, &NoPlatformError{Driver: driver.Name()}
	}

	platform := platforms[0]
	pinfo := platform.Info()
	slog.Debug("Enumerated platforms", "driver", driver.Name(), "count", len(platforms), "using", pinfo.Name)

	var lastErr error
	for i, class := range prefer {
		if i > 0 {
			slog.Info("No usable device, trying next class", "previous", prefer[i-1], "next", class)
		}

		devices, err := platform.Devices(class)
		if err != nil {
			slog.Debug("Device query failed", "class", class, "error", err)
			lastErr = err
			continue
		}

		for _, dev := range devices {
			info := dev.Info()
			if !info.ImageSupport {
				slog.Debug("Skipping device without image support", "device", info.Name, "class", class)
				continue
			}
			ctx, err := dev.CreateContext()
			if err != nil {
				slog.Warn("Failed to create context", "device", info.Name, "error", err)
				lastErr = err
				continue
			}

			slog.Info("Compute device selected",
				"driver", driver.Name(),
				"platform", pinfo.Name,
				"device", info.Name,
				"type", info.Type,
				"compute_units", info.MaxComputeUnits,
				"max_work_group", info.MaxWorkGroupSize)
			return &Session{
				driver:   driver.Name(),
				platform: pinfo,
				device:   dev,
				info:     info,
				ctx:      ctx,
			}, nil
		}
	}

	return nil, &NoDeviceError{Platform: pinfo.Name, Tried: prefer, Err: lastErr}
}

// Device describes the selected device.
func (s *Session) Device() cl.DeviceInfo {
	return s.info
}

// Platform describes the platform the device belongs to.
func (s *Session) Platform() cl.PlatformInfo {
	return s.platform
}

func (s *Session) track(r releaser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		r.Release()
		return fmt.Errorf("session closed")
	}
	s.owned = append(s.owned, r)
	return nil
}

// NewQueue creates the session's in-order command queue.
func (s *Session) NewQueue() (cl.CommandQueue, error) {
	q, err := s.ctx.CreateCommandQueue()
	if err != nil {
		return nil, s.setupError(err)
	}
	if err := s.track(q); err != nil {
		return nil, err
	}
	return q, nil
}

// NewSampler creates the clamp-to-edge, unnormalized, nearest sampler every
// filter reads through.
func (s *Session) NewSampler() (cl.Sampler, error) {
	smp, err := s.ctx.CreateSampler(cl.SamplerDesc{
		NormalizedCoords: false,
		Addressing:       cl.AddressClampToEdge,
		Filter:           cl.FilterNearest,
	})
	if err != nil {
		return nil, s.setupError(err)
	}
	if err := s.track(smp); err != nil {
		return nil, err
	}
	return smp, nil
}

func (s *Session) setupError(err error) error {
	if cl.StatusOf(err) == cl.DeviceNotAvailable {
		return &DeviceLostError{Stage: StageSelect, Device: s.info.Name, Err: err}
	}
	return &DispatchError{Device: s.info.Name, Err: err}
}

// Close releases owned objects newest first, then the context. It is safe
// to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	owned := s.owned
	s.owned = nil
	s.mu.Unlock()

	for i := len(owned) - 1; i >= 0; i-- {
		owned[i].Release()
	}
	s.ctx.Release()
	slog.Debug("Session closed", "device", s.info.Name, "released", len(owned))
}

// String names the session as driver/platform/device.
func (s *Session) String() string {
	return strings.Join([]string{s.driver, s.platform.Name, s.info.Name}, "/")
}
