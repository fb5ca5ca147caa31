package shutdown

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/vinayprograms/pagechat/logging"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Phases used by the relay.
const (
	PhaseServer = 10 // stop accepting HTTP requests
	PhaseGate   = 20 // reject queued generations, drain in-flight ones
	PhaseFlush  = 30 // flush telemetry, close clients
)

// Handler is implemented by components that need graceful shutdown.
type Handler interface {
	// OnShutdown is called when shutdown is initiated. ctx ends when the
	// shutdown timeout is reached.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	// Signal that started shutdown, nil when started by a call.
	Signal os.Signal

	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is the overall error (nil if all handlers succeeded).
	Err error
}

// Failed returns true if any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// Timeout bounds the whole sequence when started by a signal.
	// Default: 30 seconds
	Timeout time.Duration

	// ContinueOnError runs later phases even if a handler fails.
	// Default: true
	ContinueOnError bool

	// OnProgress is called when each handler completes.
	OnProgress func(result HandlerResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}

// LogProgress returns an OnProgress callback that logs each handler.
func LogProgress(l *logging.Logger) func(HandlerResult) {
	return func(hr HandlerResult) {
		fields := map[string]interface{}{
			"handler":  hr.Name,
			"phase":    hr.Phase,
			"duration": hr.Duration.String(),
		}
		if hr.Err != nil {
			fields["error"] = hr.Err.Error()
			l.Error("shutdown_handler_failed", fields)
			return
		}
		l.Info("shutdown_handler_done", fields)
	}
}

// registration holds a registered handler with its metadata.
type registration struct {
	name    string
	handler Handler
	phase   int
}
