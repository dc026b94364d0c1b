package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Overall health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of the /health and /ready responses
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last reported state of one dependency
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
	// Since is when Healthy last changed
	Since time.Time
	// Failures counts consecutive unhealthy reports
	Failures int
}

func (c ComponentHealth) describe() string {
	if c.Healthy {
		return StatusHealthy
	}
	return fmt.Sprintf("unhealthy for %s (%d checks): %s", time.Since(c.Since).Round(time.Second), c.Failures, c.Message)
}

// HealthChecker keeps the health of the process dependencies. Components
// listed as critical gate readiness and make /health unhealthy; any other
// failing component only degrades it.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
	critical   []string
}

// DefaultCriticalComponents must be healthy before the process reports ready
var DefaultCriticalComponents = []string{"ledger", "kubernetes"}

var healthChecker = newHealthChecker()

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetCriticalComponents replaces the components checked by the readiness probe
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.critical = append([]string(nil), names...)
}

// RegisterComponent records the state of a component, replacing any earlier report
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	now := time.Now()
	comp := ComponentHealth{Name: name, Healthy: healthy, Message: message, Updated: now, Since: now}
	if !healthy {
		comp.Failures = 1
	}
	healthChecker.components[name] = comp
}

// UpdateComponent records a new report for a component and keeps track of
// how long it has been in its current state
func UpdateComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	now := time.Now()
	comp, ok := healthChecker.components[name]
	if !ok || comp.Healthy != healthy {
		comp = ComponentHealth{Name: name, Since: now}
	}
	comp.Healthy = healthy
	comp.Message = message
	comp.Updated = now
	if healthy {
		comp.Failures = 0
	} else {
		comp.Failures++
	}
	healthChecker.components[name] = comp
}

func (h *HealthChecker) criticalNames() []string {
	if h.critical == nil {
		return DefaultCriticalComponents
	}
	return h.critical
}

// GetHealth returns the overall health status
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	critical := healthChecker.criticalNames()
	status := StatusHealthy
	message := ""
	components := make(map[string]string, len(healthChecker.components))

	for name, comp := range healthChecker.components {
		components[name] = comp.describe()
		if comp.Healthy {
			continue
		}
		if slices.Contains(critical, name) {
			status = StatusUnhealthy
			message = name + " is unhealthy"
		} else if status == StatusHealthy {
			status = StatusDegraded
			message = name + " is unhealthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

// GetReadiness reports ready once every critical component reported healthy
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusReady
	message := ""
	components := make(map[string]string)

	for _, name := range healthChecker.criticalNames() {
		comp, exists := healthChecker.components[name]
		switch {
		case !exists:
			status = StatusNotReady
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.Healthy:
			status = StatusNotReady
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = StatusReady
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves /health. Only an unhealthy critical component fails it.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, health)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		code := http.StatusOK
		if readiness.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, readiness)
	}
}

// LivenessHandler always returns 200 while the process is running
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
