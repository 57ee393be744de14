package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"errors"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantDB   string
		wantRPC  string
	}{
		{
			name: "all_ok",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode: http.StatusOK,
			wantDB:   "ok",
			wantRPC:  "ok",
		},
		{
			name: "db_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return context.DeadlineExceeded },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "fail",
			wantRPC:  "ok",
		},
		{
			name: "rpc_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return context.DeadlineExceeded },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "ok",
			wantRPC:  "fail",
		},
		{
			name: "both_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return context.DeadlineExceeded },
				RPCPing: func(ctx context.Context) error { return context.DeadlineExceeded },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "fail",
			wantRPC:  "fail",
		},
		{
			name: "no_checkers",
			checker: Checker{
				DBPing:  nil,
				RPCPing: nil,
			},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()

			Router(tt.checker).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}

			if resp["status"] != "ok" {
				t.Errorf("status = %q, want ok", resp["status"])
			}

			if tt.wantDB != "" && resp["db"] != tt.wantDB {
				t.Errorf("db = %q, want %q", resp["db"], tt.wantDB)
			}
			if tt.wantRPC != "" && resp["rpc"] != tt.wantRPC {
				t.Errorf("rpc = %q, want %q", resp["rpc"], tt.wantRPC)
			}
		})
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := Serve("127.0.0.1:0", Checker{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Shutdown(ctx, srv); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCursorsEndpoint(t *testing.T) {
	checker := Checker{
		Cursors: func(ctx context.Context) (any, error) {
			return []map[string]any{{"key": "tron/legacy/T1", "block": 1700}}, nil
		},
	}
	w := httptest.NewRecorder()
	Router(checker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cursors", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var got []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["key"] != "tron/legacy/T1" {
		t.Fatalf("unexpected cursors: %v", got)
	}

	w = httptest.NewRecorder()
	Router(Checker{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cursors", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("disabled listing status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	Router(Checker{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRPCChecker(t *testing.T) {
	down := errors.New("connection refused")
	checker := NewRPCChecker(map[string]Pinger{
		"ethereum": pingFunc(func(context.Context) error { return nil }),
		"tron":     pingFunc(func(context.Context) error { return down }),
	})

	res := checker.Each(context.Background())
	if len(res) != 2 || res[0].Network != "ethereum" || res[1].Network != "tron" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if err := checker.Ping(context.Background()); !errors.Is(err, down) {
		t.Fatalf("ping error = %v", err)
	}
}
