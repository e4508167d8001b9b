package filter

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwbudde/imagefilter2d/internal/cl"
	"github.com/cwbudde/imagefilter2d/internal/cl/host"
	"github.com/cwbudde/imagefilter2d/internal/cl/opencl"
	"github.com/cwbudde/imagefilter2d/internal/kernels"
)

// Backend identifies a compute driver.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendOpenCL Backend = "opencl"
	BackendHost   Backend = "host"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown compute backend")
	// ErrBackendUnavailable indicates the backend cannot be used in this build or on this machine.
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return BackendAuto
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	case "host", "cpu", "go":
		return BackendHost
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by OpenDriver.
func SupportedBackends() []Backend {
	return []Backend{BackendAuto, BackendOpenCL, BackendHost}
}

// HostDriver returns a pure-Go driver with the built-in kernels linked.
func HostDriver(opts ...host.Option) *host.Driver {
	return host.New(append([]host.Option{host.WithKernels(kernels.Host())}, opts...)...)
}

// OpenDriver constructs the requested driver. Auto prefers OpenCL when it is
// compiled in and reports at least one platform, and otherwise falls back
// to the host driver.
func OpenDriver(name string) (cl.Driver, error) {
	switch backend := NormalizeBackend(name); backend {
	case BackendHost:
		return HostDriver(), nil
	case BackendOpenCL:
		d, err := opencl.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, backend, err)
		}
		return d, nil
	case BackendAuto:
		d, err := opencl.New()
		if err != nil {
			slog.Debug("OpenCL unavailable, using host device", "reason", err)
			return HostDriver(), nil
		}
		platforms, err := d.Platforms()
		if err != nil || len(platforms) == 0 {
			slog.Info("No OpenCL platforms, using host device", "error", err)
			return HostDriver(), nil
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
