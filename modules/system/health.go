package system

import (
	"fmt"
	"slices"
	"strings"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// HealthStatus is the overall health of the assistant.
type HealthStatus int

const (
	HealthStatusUnknown HealthStatus = iota
	// HealthStatusHealthy means every module is ready.
	HealthStatusHealthy
	// HealthStatusDegraded means an optional module is down or the bus has
	// dropped or failed deliveries.
	HealthStatusDegraded
	// HealthStatusUnhealthy means a required module is down.
	HealthStatusUnhealthy
)

// String returns the string representation of the health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *HealthStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []HealthStatus{HealthStatusHealthy, HealthStatusDegraded, HealthStatusUnhealthy} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	*s = HealthStatusUnknown
	return nil
}

// IsHealthy returns true if the status represents a healthy state
func (s HealthStatus) IsHealthy() bool {
	return s == HealthStatusHealthy
}

// HealthReport is the aggregated view of the modules and the bus.
type HealthReport struct {
	Status   HealthStatus   `json:"status"`
	Ready    int            `json:"ready"`
	Total    int            `json:"total"`
	Down     []string       `json:"down,omitempty"`
	Bus      eventbus.Stats `json:"bus"`
	Messages []string       `json:"messages,omitempty"`
}

// Evaluate aggregates module states and bus counters into a report.
func Evaluate(modules []sage.ModuleStatus, bus eventbus.Stats) HealthReport {
	report := HealthReport{Status: HealthStatusHealthy, Total: len(modules), Bus: bus}
	worsen := func(s HealthStatus) {
		if s > report.Status {
			report.Status = s
		}
	}

	for _, m := range modules {
		if m.State == sage.StateReady {
			report.Ready++
			continue
		}
		report.Down = append(report.Down, fmt.Sprintf("%s (%s)", m.Name, m.State))
		if m.Required && m.State == sage.StateFailed {
			worsen(HealthStatusUnhealthy)
			report.Messages = append(report.Messages, fmt.Sprintf("required module %s failed: %s", m.Name, m.Error))
		} else {
			worsen(HealthStatusDegraded)
		}
	}
	slices.Sort(report.Down)

	if bus.Dropped > 0 {
		worsen(HealthStatusDegraded)
		report.Messages = append(report.Messages, plural(int(bus.Dropped), "event")+" dropped")
	}
	if bus.Failed > 0 {
		worsen(HealthStatusDegraded)
		report.Messages = append(report.Messages, plural(int(bus.Failed), "delivery")+" failed")
	}
	return report
}

// Summary phrases the report for speech.
func (r HealthReport) Summary() string {
	if r.Status == HealthStatusHealthy {
		return fmt.Sprintf("All systems are running normally. %s loaded.", plural(r.Total, "module"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %s running.", r.Ready, plural(r.Total, "module"))
	if len(r.Down) > 0 {
		fmt.Fprintf(&b, " Not running: %s.", strings.Join(r.Down, ", "))
	}
	if r.Bus.Dropped > 0 || r.Bus.Failed > 0 {
		fmt.Fprintf(&b, " %s dropped and %s failed.", plural(int(r.Bus.Dropped), "event"), plural(int(r.Bus.Failed), "delivery"))
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
