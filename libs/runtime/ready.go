package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

// NewBaseMuxWithReady serves /healthz (process is up) and /readyz (every
// dependency check passes). Service routers are mounted on the returned mux.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/readyz", ReadyHandler(checks...))
	return mux
}

// ReadyHandler runs every check concurrently, each under its own timeout,
// and answers 503 with the failing checks' errors if any fails.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			mu       sync.Mutex
			wg       sync.WaitGroup
			failures = map[string]string{}
		)
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			name := c.Name
			if name == "" {
				name = "dependency"
			}
			wg.Add(1)
			go func(name string, check func(context.Context) error) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
				defer cancel()
				if err := check(ctx); err != nil {
					mu.Lock()
					failures[name] = err.Error()
					mu.Unlock()
				}
			}(name, c.Check)
		}
		wg.Wait()

		if len(failures) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failures})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
