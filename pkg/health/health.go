// Package health serves the /livez and /readyz probes.
//
// Every probe runs in the background on a fixed interval and only flips
// state after FailureThreshold consecutive failures or SuccessThreshold
// consecutive successes, so a single slow ping does not pull the instance
// out of the load balancer.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Probe describes a registered check.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   CheckFunc
	// Zero thresholds default to 3 failures and 1 success.
	FailureThreshold int
	SuccessThreshold int
}

// probe is a Probe with its runtime state. fails and oks are owned by the
// goroutine calling run; healthy and lastErr are read by HTTP handlers.
type probe struct {
	Probe
	kind Kind

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// run executes the check once and reports whether the health state flipped.
func (p *probe) run(ctx context.Context) (flipped bool) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Check(ctx)
	p.lastErr.Store(&err)

	was := p.healthy.Load()
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
	} else {
		p.fails = 0
		p.oks++
		if p.oks >= p.SuccessThreshold {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load()
}

// Option configures Health.
type Option func(*Health)

// WithLogger logs probe state changes to lg.
func WithLogger(lg *zap.Logger) Option {
	return func(h *Health) { h.lg = lg }
}

// WithMeterProvider exports probe states as the shopkart.health.status gauge.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Health) { h.mp = mp }
}

// Health tracks liveness and readiness probes for one process.
type Health struct {
	ready atomic.Bool

	lg *zap.Logger
	mp metric.MeterProvider

	mu     sync.RWMutex
	probes [2][]*probe
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that is not ready until SetReady(true).
func New(opts ...Option) *Health {
	h := &Health{lg: zap.NewNop(), mp: noop.NewMeterProvider()}
	for _, o := range opts {
		o(h)
	}

	meter := h.mp.Meter("github.com/xenking/shopkart/pkg/health")
	gauge, err := meter.Int64ObservableGauge(
		"shopkart.health.status",
		metric.WithDescription("1 when the probe is healthy, 0 otherwise."),
	)
	if err != nil {
		h.lg.Warn("Register health gauge", zap.Error(err))
		return h
	}
	if _, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			for _, p := range h.all() {
				var v int64
				if p.healthy.Load() {
					v = 1
				}
				o.ObserveInt64(gauge, v, metric.WithAttributes(
					attribute.String("probe", p.Name),
					attribute.String("kind", p.kind.String()),
				))
			}
			return nil
		}, gauge,
	); err != nil {
		h.lg.Warn("Register health callback", zap.Error(err))
	}
	return h
}

// Add registers a probe. Probes start healthy.
func (h *Health) Add(kind Kind, pr Probe) {
	if pr.FailureThreshold <= 0 {
		pr.FailureThreshold = 3
	}
	if pr.SuccessThreshold <= 0 {
		pr.SuccessThreshold = 1
	}
	p := &probe{Probe: pr, kind: kind}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes[kind] = append(h.probes[kind], p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a liveness probe with default thresholds.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Liveness, Probe{Name: name, Timeout: timeout, Check: check})
}

// AddReadinessCheck registers a readiness probe with default thresholds.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Readiness, Probe{Name: name, Timeout: timeout, Check: check})
}

func (h *Health) list(kind Kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*probe(nil), h.probes[kind]...)
}

func (h *Health) all() []*probe {
	return append(h.list(Liveness), h.list(Readiness)...)
}

// Start runs every registered probe immediately and then once per interval
// until ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	for _, p := range h.all() {
		h.wg.Go(func() { h.loop(ctx, p, interval) })
	}
}

func (h *Health) loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.run(ctx) {
			h.logFlip(p)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Health) logFlip(p *probe) {
	fields := []zap.Field{zap.String("probe", p.Name), zap.Stringer("kind", p.kind)}
	if p.healthy.Load() {
		h.lg.Info("Probe recovered", fields...)
		return
	}
	h.lg.Warn("Probe failing", append(fields, zap.Error(p.err()))...)
}

// Stop cancels the probe loops and waits for them. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// SetReady marks the process as able (or no longer able) to serve traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether SetReady(true) was called and every readiness
// probe passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.list(Readiness) {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, report(h.list(Liveness), verbose(r)))
}

// ReadyEndpoint serves /readyz. A process not marked ready reports the
// pseudo check "_readiness".
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	rep := report(h.list(Readiness), verbose(r))
	if !h.ready.Load() {
		rep.failed = true
		rep.checks["_readiness"] = "service is not ready"
	}
	writeResponse(w, rep)
}

func verbose(r *http.Request) bool {
	_, ok := r.URL.Query()["verbose"]
	return ok
}

type probeReport struct {
	failed bool
	checks map[string]string
}

// report lists unhealthy probes, or every probe when all is set.
func report(probes []*probe, all bool) probeReport {
	rep := probeReport{checks: make(map[string]string)}
	for _, p := range probes {
		if p.healthy.Load() {
			if all {
				rep.checks[p.Name] = "ok"
			}
			continue
		}
		rep.failed = true
		msg := "check is unhealthy"
		if err := p.err(); err != nil {
			msg = err.Error()
		}
		rep.checks[p.Name] = msg
	}
	return rep
}

// statusResponse is the probe response body.
type statusResponse struct {
	Status string
	Checks map[string]string
}

// Encode writes r with check names sorted.
func (r statusResponse) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(r.Status) })
		if len(r.Checks) == 0 {
			return
		}
		names := make([]string, 0, len(r.Checks))
		for name := range r.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(r.Checks[name]) })
				}
			})
		})
	})
}

// Decode reads r from d.
func (r *statusResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			r.Status = v
			return err
		case "checks":
			r.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				r.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
}

func writeResponse(w http.ResponseWriter, rep probeReport) {
	resp := statusResponse{Status: "ok", Checks: rep.checks}
	code := http.StatusOK
	if rep.failed {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	var e jx.Encoder
	resp.Encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
