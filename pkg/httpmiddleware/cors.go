package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowHeaders lists permitted request headers. Empty echoes the
	// preflight's Access-Control-Request-Headers.
	AllowHeaders     []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds, 0 omits the header.
	MaxAge int
}

const corsMethods = "GET, POST, OPTIONS"

// CORS answers preflight requests and decorates responses to allowed origins.
// With credentials enabled the request origin is echoed instead of "*".
func CORS(cfg CORSConfig) Middleware {
	wildcard := len(cfg.AllowOrigins) == 0
	origins := make(map[string]string, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		origins[strings.ToLower(o)] = o
	}
	headers := strings.Join(cfg.AllowHeaders, ", ")

	allowOrigin := func(origin string) string {
		switch {
		case wildcard && !cfg.AllowCredentials:
			return "*"
		case wildcard:
			return origin
		default:
			return origins[strings.ToLower(origin)]
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard || cfg.AllowCredentials {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := allowOrigin(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					if headers != "" {
						h.Set("Access-Control-Allow-Headers", headers)
					} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
						h.Set("Access-Control-Allow-Headers", req)
					}
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if cfg.MaxAge > 0 {
						h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
