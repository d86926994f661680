package server

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"skirmish/server/handler"
)

type Routes struct {
	Root   http.Handler
	Health http.Handler
	Accept http.Handler
	// AllowedOrigins は Origin のホスト部に対する path.Match パターン。
	AllowedOrigins []string
}

func Route(routes Routes) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", routes.Root)
	mux.Handle("GET /health", otelhttp.NewHandler(routes.Health, "health"))
	// /ws はハイジャックされるので otelhttp で包まない
	mux.Handle("/ws", routes.Accept)
	return withCORS(routes.AllowedOrigins, mux)
}

// DefaultRoutes は root と health を handler パッケージのものにしたルート。
func DefaultRoutes(counter handler.PlayerCounter, accept http.Handler, origins []string) Routes {
	return Routes{
		Root:           handler.NewRootHandler(),
		Health:         handler.NewHealthHandler(counter, startedAt(), nil),
		Accept:         accept,
		AllowedOrigins: origins,
	}
}

func withCORS(patterns []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(patterns, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(patterns []string, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, p := range patterns {
		if ok, err := path.Match(strings.ToLower(p), host); err == nil && ok {
			return true
		}
	}
	return false
}
