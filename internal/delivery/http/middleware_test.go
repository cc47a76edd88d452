package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIsAllowedOrigin(t *testing.T) {
	site := []string{"https://*.pricelens.io", "http://localhost:3000"}

	cases := map[string]struct {
		origin  string
		allowed []string
		want    bool
	}{
		"exact entry":                 {"http://localhost:3000", site, true},
		"subdomain wildcard":          {"https://app.pricelens.io", site, true},
		"nested subdomain":            {"https://beta.app.pricelens.io", site, true},
		"bare domain misses wildcard": {"https://pricelens.io", site, false},
		"wrong scheme":                {"http://app.pricelens.io", site, false},
		"lookalike suffix":            {"https://app.pricelens.io.evil.com", site, false},
		"trailing wildcard":           {"https://shop.example.com", []string{"https://*"}, true},
		"match all":                   {"https://anything.test", []string{"*"}, true},
		"empty origin":                {"", []string{"*"}, false},
		"nothing configured":          {"https://app.pricelens.io", nil, false},
		"port must match":             {"http://localhost:5173", site, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := isAllowedOrigin(tc.origin, tc.allowed); got != tc.want {
				t.Errorf("isAllowedOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}

func corsRouter(allowed ...string) *gin.Engine {
	router := gin.New()
	router.Use(CORSMiddleware(allowed))
	handler := func(c *gin.Context) { c.String(http.StatusOK, "OK") }
	router.GET("/prices", handler)
	router.POST("/prices", handler)
	return router
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := corsRouter("https://*.pricelens.io")

	send := func(method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/prices", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("allowed origin is echoed with credentials", func(t *testing.T) {
		w := send(http.MethodGet, "https://app.pricelens.io")
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want 200", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.pricelens.io" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("Access-Control-Allow-Credentials not set to true")
		}
	})

	t.Run("foreign origin still served without CORS headers", func(t *testing.T) {
		w := send(http.MethodGet, "http://evil.com")
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want 200", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("same-origin request has no CORS headers", func(t *testing.T) {
		w := send(http.MethodPost, "")
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want 200", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight short-circuits with 204", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/prices", nil)
		req.Header.Set("Origin", "https://app.pricelens.io")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Request-ID")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight Status = %d, want 204", w.Code)
		}
		for _, h := range []string{"Access-Control-Allow-Methods", "Access-Control-Allow-Headers", "Access-Control-Max-Age"} {
			if w.Header().Get(h) == "" {
				t.Errorf("%s not set", h)
			}
		}
	})

	t.Run("preflight from foreign origin gets no grant", func(t *testing.T) {
		w := send(http.MethodOptions, "http://evil.com")
		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want 204", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Methods") != "" {
			t.Error("Access-Control-Allow-Methods set for a foreign origin")
		}
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	t.Run("generates an id when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		id := w.Header().Get(requestIDHeader)
		if len(id) != 36 {
			t.Errorf("X-Request-ID = %q, want a uuid", id)
		}
		if w.Body.String() != id {
			t.Errorf("context id = %q, header id = %q", w.Body.String(), id)
		}
	})

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get(requestIDHeader); got != "abc-123" {
			t.Errorf("X-Request-ID = %q, want abc-123", got)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(perMinute int) *gin.Engine {
		router := gin.New()
		router.Use(RateLimitMiddleware(perMinute))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})
		return router
	}

	send := func(router *gin.Engine, ip string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("blocks after burst per IP", func(t *testing.T) {
		router := newRouter(3)

		for i := 0; i < 3; i++ {
			if code := send(router, "10.0.0.1"); code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want 200", i+1, code)
			}
		}
		if code := send(router, "10.0.0.1"); code != http.StatusTooManyRequests {
			t.Errorf("Status = %d, want 429", code)
		}
		if code := send(router, "10.0.0.2"); code != http.StatusOK {
			t.Errorf("other IP Status = %d, want 200", code)
		}
	})

	t.Run("zero disables limiting", func(t *testing.T) {
		router := newRouter(0)
		for i := 0; i < 20; i++ {
			if code := send(router, "10.0.0.1"); code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want 200", i+1, code)
			}
		}
	})
}

func TestIPLimiter_SweepsIdleEntries(t *testing.T) {
	l := newIPLimiter(10)
	start := time.Now()

	l.allow("10.0.0.1", start)
	l.allow("10.0.0.2", start)
	l.allow("10.0.0.3", start.Add(limiterIdleTTL+2*time.Minute))

	if len(l.limiters) != 1 {
		t.Errorf("limiters = %d, want 1 after sweep", len(l.limiters))
	}
}
