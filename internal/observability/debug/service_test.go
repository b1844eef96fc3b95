package debug

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "notifyd/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerEndpoints(t *testing.T) {
	t.Parallel()

	ready := false
	s := New(Config{}, Sources{
		Metrics:       http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "m 1\n") }),
		Notifications: func() any { return []string{"IncomingCall"} },
		Ready:         func() bool { return ready },
	}, logx.Nop())
	h := s.Handler("")

	if rr := get(t, h, "/healthz", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz before ready = %d", rr.Code)
	}
	ready = true
	if rr := get(t, h, "/healthz", nil); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr := get(t, h, "/metrics", nil); rr.Body.String() != "m 1\n" {
		t.Fatalf("metrics = %q", rr.Body.String())
	}
	rr := get(t, h, "/debug/notifications", nil)
	var got []string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0] != "IncomingCall" {
		t.Fatalf("notifications = %q (%v)", rr.Body.String(), err)
	}
	if rr := get(t, h, "/debug/schedules", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unset source served: %d", rr.Code)
	}
	if rr := get(t, h, "/debug/pprof/", nil); rr.Code != http.StatusOK {
		t.Fatalf("pprof index = %d", rr.Code)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	h := New(Config{}, Sources{}, logx.Nop()).Handler("s3cret")
	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"bad query", "/healthz?token=nope", nil, http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"bearer", "/healthz", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"bad bearer", "/healthz", map[string]string{"Authorization": "Bearer x"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := get(t, h, tt.target, tt.header); rr.Code != tt.want {
				t.Fatalf("code = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:6061": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6061":          false,
		"0.0.0.0:6061":   false,
		"10.0.0.1:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}

func TestStartServeStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Sources{}, logx.Nop())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatal("still bound after Stop")
	}
	s.Reconfigure(ctx, Config{Enabled: false})
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	if err := s.serveOnce(context.Background()); err != errInsecureBind {
		t.Fatalf("err = %v", err)
	}
}
