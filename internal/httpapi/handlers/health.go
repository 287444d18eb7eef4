package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"framefarm/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// check is the outcome of probing one dependency.
type check struct {
	Status    string `json:"status"`
	Provider  string `json:"provider,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

type healthResponse struct {
	Status  string           `json:"status"`
	Service string           `json:"service"`
	Version string           `json:"version"`
	Checks  map[string]check `json:"checks,omitempty"`
}

// Health always answers 200. With ?deep=true it probes the ledger, the
// queue and the object store in parallel and reports "degraded" when any
// configured one fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: "framefarm-api", Version: h.version}

	if r.URL.Query().Get("deep") == "true" {
		resp.Checks = h.probe(r.Context())
		for name, c := range resp.Checks {
			if c.Status == "error" {
				resp.Status = "degraded"
				h.log.FromContext(r.Context()).Warn("dependency unhealthy", "check", name, "error", c.Error)
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) probe(ctx context.Context) map[string]check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	probes := map[string]func(context.Context) check{
		"postgres": pingCheck(h.db),
		"redis":    pingCheck(h.queue),
		"storage":  h.storageCheck,
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]check, len(probes))
	)
	for name, fn := range probes {
		name, fn := name, fn
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := fn(ctx)
			mu.Lock()
			out[name] = c
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// pingCheck reports "disabled" for a dependency the process runs without.
func pingCheck(p Pinger) func(context.Context) check {
	return func(ctx context.Context) check {
		if p == nil {
			return check{Status: "disabled"}
		}
		return timed(func() error { return p.Ping(ctx) })
	}
}

// storageCheck lists an unused prefix, one round trip on every provider.
func (h *Handler) storageCheck(ctx context.Context) check {
	if h.sp == nil {
		return check{Status: "disabled"}
	}
	c := timed(func() error {
		_, err := h.sp.ListObjects(ctx, ".health/")
		return err
	})
	c.Provider = h.sp.Provider()
	return c
}

func timed(fn func() error) check {
	start := time.Now()
	c := check{Status: "ok"}
	if err := fn(); err != nil {
		c.Status = "error"
		c.Error = err.Error()
	}
	c.LatencyMS = time.Since(start).Milliseconds()
	return c
}
