package edge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blackwell-systems/edgeredirect/internal/config"
	"github.com/blackwell-systems/edgeredirect/internal/logging"
	"github.com/blackwell-systems/edgeredirect/internal/normalize"
	"github.com/blackwell-systems/edgeredirect/internal/observability"
	"github.com/blackwell-systems/edgeredirect/internal/ratelimit"
	"github.com/blackwell-systems/edgeredirect/internal/redirect"
)

const requestIDHeader = "X-Request-Id"

// Gateway answers requests from the active redirect table: a matching rule
// produces a 301, anything else goes to the origin (or 404 without one).
type Gateway struct {
	table atomic.Pointer[redirect.Table]

	origin        *httputil.ReverseProxy
	originTimeout time.Duration

	limiter   *ratelimit.Limiter
	rateLimit config.RateLimitConfig

	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
	log         logrus.FieldLogger
}

func New(cfg *config.Config, table *redirect.Table) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if table == nil {
		return nil, errors.New("redirect table is required")
	}

	g := &Gateway{
		originTimeout: cfg.OriginTimeout(),
		limiter:       ratelimit.NewLimiter(),
		rateLimit:     cfg.RateLimit,
		log:           logging.Discard(),
	}
	g.table.Store(table)

	if cfg.Origin.URL != "" {
		target, err := url.Parse(cfg.Origin.URL)
		if err != nil {
			return nil, fmt.Errorf("parse origin %s: %w", cfg.Origin.URL, err)
		}
		g.origin = newOriginProxy(target, g.originTimeout)
	}

	return g, nil
}

func (g *Gateway) SetDecisionLogger(logger *logging.DecisionLogger) {
	g.decisionLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
	table := g.Table()
	metrics.SetTableInfo(table.Len(), table.Hosts())
}

func (g *Gateway) SetLogger(logger logrus.FieldLogger) {
	if logger != nil {
		g.log = logger
	}
}

// Table returns the table currently used for new requests.
func (g *Gateway) Table() *redirect.Table {
	return g.table.Load()
}

// SetTable replaces the active table. Requests already being evaluated keep
// the table they started with.
func (g *Gateway) SetTable(table *redirect.Table) {
	if table == nil {
		return
	}
	g.metrics.SetTableInfo(table.Len(), table.Hosts())
	g.table.Store(table)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	host := normalize.Host(r.Host)
	decision := logging.Decision{
		Timestamp: start.UTC(),
		RequestID: uuid.NewString(),
		ClientIP:  clientIP(r),
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.EscapedPath(),
		Query:     r.URL.RawQuery,
	}
	w.Header().Set(requestIDHeader, decision.RequestID)

	if g.rateLimit.Enabled {
		key := ratelimit.Key(ratelimit.KeyType(g.rateLimit.Key), decision.ClientIP, host)
		if !g.limiter.Allow(key, g.rateLimit.RPS, g.rateLimit.Burst, start) {
			decision.Action = logging.ActionLimited
			decision.StatusCode = rateLimitStatus(g.rateLimit.StatusCode)
			http.Error(w, "rate limit exceeded", decision.StatusCode)
			g.writeDecision(decision, host, start)
			return
		}
	}

	req := redirect.Request{Host: normalize.StripPort(r.Host), Path: decision.Path, Query: decision.Query}
	evalStart := time.Now()
	result, err := g.Table().Evaluate(req)
	g.metrics.ObserveEvaluation(time.Since(evalStart))
	if err != nil {
		decision.Action = logging.ActionReject
		decision.StatusCode = http.StatusBadRequest
		decision.Error = err.Error()
		http.Error(w, "bad request", http.StatusBadRequest)
		g.writeDecision(decision, host, start)
		return
	}

	if result.Matched {
		decision.Action = logging.ActionRedirect
		decision.Rule = result.Rule
		decision.Location = result.Location
		decision.StatusCode = result.StatusCode
		http.Redirect(w, r, result.Location, result.StatusCode)
		g.writeDecision(decision, host, start)
		return
	}

	if g.origin == nil {
		decision.Action = logging.ActionNotFound
		decision.StatusCode = http.StatusNotFound
		http.NotFound(w, r)
		g.writeDecision(decision, host, start)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.originTimeout)
	defer cancel()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	originStart := time.Now()
	g.origin.ServeHTTP(rec, r.WithContext(ctx))
	decision.Action = logging.ActionPass
	decision.StatusCode = rec.status
	decision.OriginMS = time.Since(originStart).Milliseconds()
	g.writeDecision(decision, host, start)
}

// RunMaintenance sweeps idle rate limit buckets until ctx is done.
func (g *Gateway) RunMaintenance(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if removed := g.limiter.Sweep(now); removed > 0 {
				g.log.WithField("buckets", removed).Debug("rate limit buckets swept")
			}
		}
	}
}

func (g *Gateway) writeDecision(decision logging.Decision, host string, start time.Time) {
	elapsed := time.Since(start)
	decision.DurationMS = elapsed.Milliseconds()
	if g.decisionLog != nil {
		if err := g.decisionLog.Write(decision); err != nil {
			g.log.WithError(err).Warn("decision log write failed")
		}
	}
	g.metrics.Observe(decision, host, elapsed)
	g.log.WithFields(logging.DecisionFields(decision)).Debug("request handled")
}

func newOriginProxy(target *url.URL, timeout time.Duration) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = newTransport(timeout)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			http.Error(w, "origin timeout", http.StatusGatewayTimeout)
		default:
			http.Error(w, "origin error", http.StatusBadGateway)
		}
	}
	return proxy
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

func rateLimitStatus(code int) int {
	if code <= 0 {
		return http.StatusTooManyRequests
	}
	return code
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
