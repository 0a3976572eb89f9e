package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"oiflow/cache"
	appconfig "oiflow/config"
	"oiflow/models"
)

type fakePoller struct{ age time.Duration }

func (f fakePoller) SessionAge() time.Duration { return f.age }

func newTestServer(t *testing.T, store *cache.SnapshotStore) (*Server, http.Handler) {
	t.Helper()
	cfg := appconfig.ServerConfig{
		Address:         ":0",
		ShutdownTimeout: time.Second,
		WSPushInterval:  10 * time.Millisecond,
	}
	srv := NewServer(cfg, store, fakePoller{age: 5 * time.Second})
	router, err := srv.buildRouter(context.Background())
	if err != nil {
		t.Fatalf("buildRouter failed: %v", err)
	}
	return srv, router
}

func TestTotalsBeforeFirstFetch(t *testing.T) {
	store := cache.NewSnapshotStore()
	_, router := newTestServer(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Data not yet available; try again in a few seconds." {
		t.Fatalf("unexpected error body: %q", body["error"])
	}
}

func TestTotalsAfterSuccessfulCycle(t *testing.T) {
	store := cache.NewSnapshotStore()
	store.Set(models.OITotals{CE: models.SideTotal{TotalOI: 120}, PE: models.SideTotal{TotalOI: 95}})
	_, router := newTestServer(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var totals models.OITotals
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if totals.CE.TotalOI != 120 || totals.PE.TotalOI != 95 {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	// The wire shape is contractual.
	compact := strings.TrimSpace(rec.Body.String())
	if compact != `{"CE":{"totalOI":120},"PE":{"totalOI":95}}` {
		t.Fatalf("unexpected body: %s", compact)
	}
}

func TestHealthz(t *testing.T) {
	store := cache.NewSnapshotStore()
	_, router := newTestServer(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestStatusReportsCookieAge(t *testing.T) {
	store := cache.NewSnapshotStore()
	store.Set(models.OITotals{CE: models.SideTotal{TotalOI: 1}, PE: models.SideTotal{TotalOI: 2}})
	_, router := newTestServer(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if ready, _ := status["ready"].(bool); !ready {
		t.Fatal("expected ready=true")
	}
	if _, ok := status["cookie_age_seconds"]; !ok {
		t.Fatal("missing cookie_age_seconds")
	}
	if _, ok := status["last_update"]; !ok {
		t.Fatal("missing last_update")
	}
}

func TestWSPushesSnapshotUpdates(t *testing.T) {
	store := cache.NewSnapshotStore()
	_, router := newTestServer(t, store)

	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	store.Set(models.OITotals{CE: models.SideTotal{TotalOI: 7}, PE: models.SideTotal{TotalOI: 8}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap models.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Totals.CE.TotalOI != 7 || snap.Totals.PE.TotalOI != 8 {
		t.Fatalf("unexpected snapshot: %+v", snap.Totals)
	}
}
