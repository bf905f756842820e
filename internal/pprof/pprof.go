// Package pprof wires Go profiling into the chat server: file profiles
// written around a serve run and the /debug/pprof routes on the gateway.
package pprof

import (
	"fmt"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/amchat/internal/logger"
)

// Config selects the profiles to collect. Empty paths are skipped.
type Config struct {
	CPUProfile       string
	HeapProfile      string
	GoroutineProfile string
	MutexProfile     string

	MutexProfileFraction int // sample 1/n contention events (default: 1)
}

// Enabled reports whether any file profile is configured.
func (c Config) Enabled() bool {
	return c.CPUProfile != "" || c.HeapProfile != "" || c.GoroutineProfile != "" || c.MutexProfile != ""
}

// Handler manages file profiles for one server run.
type Handler struct {
	config  Config
	log     *logger.Logger
	cpuFile *os.File

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewHandler creates a handler for config.
func NewHandler(config Config, log *logger.Logger) *Handler {
	if config.MutexProfileFraction == 0 {
		config.MutexProfileFraction = 1
	}
	return &Handler{
		config: config,
		log:    logger.OrGlobal(log).WithPrefix("pprof"),
	}
}

// Start begins CPU profiling and mutex sampling as configured.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	if h.config.CPUProfile != "" {
		f, err := create(h.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
		h.log.Info("writing CPU profile to %s", h.config.CPUProfile)
	}
	if h.config.MutexProfile != "" {
		runtime.SetMutexProfileFraction(h.config.MutexProfileFraction)
	}
	h.started = true
	return nil
}

// Stop ends CPU profiling and writes the snapshot profiles. Calling it more
// than once is a no-op.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.stopped {
		return nil
	}
	h.stopped = true

	var result error
	if h.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := h.cpuFile.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close CPU profile: %w", err))
		}
		h.cpuFile = nil
	}
	if h.config.HeapProfile != "" {
		runtime.GC()
		if err := writeProfile("heap", h.config.HeapProfile); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if h.config.GoroutineProfile != "" {
		if err := writeProfile("goroutine", h.config.GoroutineProfile); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if h.config.MutexProfile != "" {
		if err := writeProfile("mutex", h.config.MutexProfile); err != nil {
			result = multierror.Append(result, err)
		}
		runtime.SetMutexProfileFraction(0)
	}
	return result
}

// Register mounts the /debug/pprof routes on router.
func Register(router *httprouter.Router) {
	router.HandlerFunc(http.MethodGet, "/debug/pprof/", netpprof.Index)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/cmdline", netpprof.Cmdline)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/profile", netpprof.Profile)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/symbol", netpprof.Symbol)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/trace", netpprof.Trace)
	for _, name := range []string{"goroutine", "heap", "allocs", "block", "mutex", "threadcreate"} {
		router.Handler(http.MethodGet, "/debug/pprof/"+name, netpprof.Handler(name))
	}
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return os.Create(path)
}

// writeProfile writes a named profile to a file
func writeProfile(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("profile %q not found", name)
	}
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("%s profile: %w", name, err)
	}
	defer f.Close()
	if err := p.WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}
