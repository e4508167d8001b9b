package filter

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// Build compiles source for the session's device. A failed build is not
// retried; the returned *BuildError carries the compiler log verbatim.
func (s *Session) Build(source string) (cl.Program, error) {
	prog, err := s.ctx.BuildProgram(source)
	if err != nil {
		be := &BuildError{Device: s.info.Name, Err: err}
		var bf *cl.BuildFailure
		if errors.As(err, &bf) {
			be.Log = bf.Log
			be.Err = bf.Err
		}
		slog.Error("Kernel build failed", "device", s.info.Name, "error", be.Err)
		for _, line := range strings.Split(strings.TrimRight(be.Log, "\n"), "\n") {
			if line != "" {
				slog.Error("Build log", "line", line)
			}
		}
		return nil, be
	}
	if err := s.track(prog); err != nil {
		return nil, err
	}
	slog.Debug("Program built", "device", s.info.Name, "source_bytes", len(source))
	return prog, nil
}

// Kernel looks up entry in prog. An unknown entry point is reported as a
// build failure of the program it was expected in.
func (s *Session) Kernel(prog cl.Program, entry string) (cl.Kernel, error) {
	k, err := prog.CreateKernel(entry)
	if err != nil {
		return nil, &BuildError{
			Device: s.info.Name,
			Log:    "kernel entry point '" + entry + "' not found in program",
			Err:    err,
		}
	}
	if err := s.track(k); err != nil {
		return nil, err
	}
	return k, nil
}
