package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/log"
	"github.com/vovakirdan/linechat/internal/store"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
)

type nopConn struct{}

func (nopConn) Write(p []byte) (int, error) { return len(p), nil }
func (nopConn) Close() error                { return nil }

func newTestRegistry(names ...string) *core.Registry {
	reg := core.NewRegistry(log.Nop())
	for _, name := range names {
		reg.Register(core.NewSession(nopConn{}, name, "127.0.0.1:1", time.Now()))
	}
	return reg
}

func createTestStore(t *testing.T) store.SessionStore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func serve(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(":0", newTestRegistry(), nil, log.Nop())

	resp := serve(t, server.Handler, "/health")
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", resp.Code, resp.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	server := NewServer(":0", newTestRegistry("bob", "alice"), nil, log.Nop())

	resp := serve(t, server.Handler, "/stats")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}

	var stats StatsResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if stats.Sessions != 2 || len(stats.Users) != 2 || stats.Users[0] != "alice" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRecentSessionsEndpoint(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	joined := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"alice", "bob"} {
		if err := st.RecordJoin(ctx, store.SessionRecord{
			ID:         name,
			Username:   name,
			RemoteAddr: "127.0.0.1:5000",
			JoinedAt:   joined.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("record join: %v", err)
		}
	}
	if err := st.RecordLeave(ctx, "alice", joined.Add(5*time.Minute)); err != nil {
		t.Fatalf("record leave: %v", err)
	}

	server := NewServer(":0", newTestRegistry(), st, log.Nop())

	resp := serve(t, server.Handler, "/sessions/recent?limit=10")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d: %s", resp.Code, resp.Body.String())
	}

	var sessions []SessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Username != "bob" || sessions[0].LeftAt != nil {
		t.Errorf("unexpected newest session: %+v", sessions[0])
	}
	if sessions[1].Username != "alice" || sessions[1].LeftAt == nil {
		t.Errorf("unexpected oldest session: %+v", sessions[1])
	}

	if resp := serve(t, server.Handler, "/sessions/recent?limit=zero"); resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", resp.Code)
	}
}

func TestRecentSessionsWithoutAudit(t *testing.T) {
	server := NewServer(":0", newTestRegistry(), nil, log.Nop())

	if resp := serve(t, server.Handler, "/sessions/recent"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when audit is disabled, got %d", resp.Code)
	}
}
