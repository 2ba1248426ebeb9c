package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures WithCORS. An origin entry may be "*", an exact origin
// or a subdomain pattern such as "https://*.practicepulse.app".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	defaultCORSExposed = []string{RequestIDHeader, "Retry-After", "Content-Language"}
)

type originSet struct {
	any      bool
	exact    map[string]bool
	suffixes [][2]string // scheme prefix, domain suffix
}

func newOriginSet(entries []string) originSet {
	s := originSet{exact: map[string]bool{}}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimRight(strings.TrimSpace(e), "/"))
		switch {
		case e == "":
		case e == "*":
			s.any = true
		case strings.Contains(e, "://*."):
			scheme, host, _ := strings.Cut(e, "://*")
			s.suffixes = append(s.suffixes, [2]string{scheme + "://", host})
		default:
			s.exact[e] = true
		}
	}
	return s
}

func (s originSet) empty() bool {
	return !s.any && len(s.exact) == 0 && len(s.suffixes) == 0
}

func (s originSet) allows(origin string) bool {
	o := strings.ToLower(origin)
	if s.any || s.exact[o] {
		return true
	}
	for _, sfx := range s.suffixes {
		rest, ok := strings.CutPrefix(o, sfx[0])
		if ok && strings.HasSuffix(rest, sfx[1]) && len(rest) > len(sfx[1]) {
			return true
		}
	}
	return false
}

// WithCORS answers preflights and decorates responses for allowed origins.
// Requests from other origins pass through untouched. With no allowed
// origins configured it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := newOriginSet(cfg.AllowedOrigins)
	if origins.empty() {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	exposed := cfg.ExposedHeaders
	if len(exposed) == 0 {
		exposed = defaultCORSExposed
	}
	allowMethods := joinList(methods)
	allowHeaders := joinList(cfg.AllowedHeaders)
	exposeHeaders := joinList(exposed)
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))
	// A literal "*" cannot be combined with credentials, so echo the origin.
	wildcard := origins.any && !cfg.AllowCredentials

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin == "" || !origins.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			if allowHeaders != "" {
				h.Set("Access-Control-Allow-Headers", allowHeaders)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinList(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
