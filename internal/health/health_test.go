package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/salescoach/internal/resilience"
	"github.com/MrWong99/salescoach/internal/store"
)

func ok(context.Context) error { return nil }

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "store", Check: func(context.Context) error { return errors.New("down") }})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "store", Check: ok},
				{Name: "gemini", Check: ok, Advisory: true},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"store": "ok", "gemini": "ok"},
		},
		{
			name: "required fails",
			checkers: []Checker{
				{Name: "store", Check: func(context.Context) error { return errors.New("connection refused") }},
				{Name: "gemini", Check: ok, Advisory: true},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"store": "fail: connection refused", "gemini": "ok"},
		},
		{
			name: "advisory fails",
			checkers: []Checker{
				{Name: "store", Check: ok},
				{Name: "deepseek", Check: func(context.Context) error { return errors.New("circuit open") }, Advisory: true},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"store": "ok", "deepseek": "degraded: circuit open"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tc.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decode(t, rec)
			if body.Status != tc.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tc.wantBody)
			}
			for k, want := range tc.wantChecks {
				if body.Checks[k] != want {
					t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestPingChecker_Store(t *testing.T) {
	t.Parallel()
	s := store.NewMemory()
	c := PingChecker("store", s)
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c.Advisory {
		t.Error("store checker should be required")
	}
}

func TestBreakerChecker(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "openai",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	c := BreakerChecker("openai", cb)
	if !c.Advisory {
		t.Error("breaker checker should be advisory")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("closed breaker: %v", err)
	}
	_ = cb.Execute(func() error { return errors.New("boom") })
	if err := c.Check(context.Background()); err == nil {
		t.Error("open breaker should fail the check")
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "store", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
