// Package system answers system_status commands with a health summary of
// the loaded modules, the event bus and the process.
package system

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// ModuleName is the unique identifier for the system module.
const ModuleName = "system"

// SystemModule reports on the running assistant.
type SystemModule struct {
	app     sage.Application
	now     func() time.Time
	started time.Time
}

// Option configures the system module.
type Option func(*SystemModule)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *SystemModule) { m.now = now }
}

// New creates the system module.
func New(opts ...Option) *SystemModule {
	m := &SystemModule{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewModule is the registry factory.
func NewModule() sage.Module {
	return New()
}

// Name implements sage.Module.
func (m *SystemModule) Name() string { return ModuleName }

// Init implements sage.Module.
func (m *SystemModule) Init(_ context.Context, app sage.Application) error {
	m.app = app
	m.started = m.now()
	return nil
}

// Health evaluates the current module states and bus counters.
func (m *SystemModule) Health() HealthReport {
	return Evaluate(m.app.Modules(), m.app.Bus().Stats())
}

// HandleCommand speaks the health summary and the uptime.
func (m *SystemModule) HandleCommand(_ context.Context, _ eventbus.Command) (sage.Response, error) {
	report := m.Health()
	text := fmt.Sprintf("%s I've been up for %s.", report.Summary(), spokenDuration(m.now().Sub(m.started)))
	return sage.Response{Text: text, Data: report}, nil
}

// Status implements sage.StatusReporter.
func (m *SystemModule) Status() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return map[string]any{
		"uptime":     m.now().Sub(m.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"heapMB":     mem.HeapAlloc / (1 << 20),
		"goVersion":  runtime.Version(),
	}
}

func spokenDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	mins := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0 && mins == 0:
		return "less than a minute"
	case h == 0:
		return plural(mins, "minute")
	case mins == 0:
		return plural(h, "hour")
	default:
		return plural(h, "hour") + " and " + plural(mins, "minute")
	}
}
