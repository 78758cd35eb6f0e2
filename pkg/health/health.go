// Package health serves liveness and readiness probes.
//
// Every registered check is polled in the background. A check flips to
// unhealthy only after failureThreshold consecutive failures and back after
// a single success, so the probe endpoints never run checks inline.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

const failureThreshold = 3

// CheckFunc reports the health of a single dependency.
type CheckFunc func(ctx context.Context) error

type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the polling goroutine.
	fails int
}

func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.fn(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.fails++
		if p.fails >= failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.healthy.Store(true)
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "unhealthy", true
}

// Health tracks liveness and readiness of the service.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, fn: fn}
	p.healthy.Store(true)
	return p
}

// AddLivenessCheck registers a check that gates /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, fn))
}

// AddReadinessCheck registers a check that gates /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, fn))
}

// Start polls every registered check at interval until Stop or ctx is done.
// Each check is polled once before Start returns.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		p.poll(ctx)
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.poll(ctx)
				}
			}
		}()
	}
}

// Stop ends background polling. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady toggles the manual readiness flag, e.g. during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(h.readinessProbes())) == 0
}

func (h *Health) livenessProbes() []*probe {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*probe(nil), h.liveness...)
}

func (h *Health) readinessProbes() []*probe {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*probe(nil), h.readiness...)
}

func (h *Health) failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(h.livenessProbes()))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(h.readinessProbes())
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus writes {"status":"ok"} or 503 with {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")

		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
