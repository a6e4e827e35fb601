package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/assistant"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/database"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/series"
)

type fakeEngine struct {
	snap   *assistant.Snapshot
	health assistant.Health
}

func (f *fakeEngine) Snapshot() *assistant.Snapshot { return f.snap }
func (f *fakeEngine) Health() assistant.Health      { return f.health }

type fakeStore struct {
	recs     []database.WindowRecord
	stats    map[string]interface{}
	err      error
	gotLimit int
}

func (f *fakeStore) RecentWindows(asset string, limit int) ([]database.WindowRecord, error) {
	f.gotLimit = limit
	return f.recs, f.err
}

func (f *fakeStore) GetStats(asset string) (map[string]interface{}, error) {
	return f.stats, nil
}

func runningHealth() assistant.Health {
	return assistant.Health{
		Running:    true,
		SessionID:  "test-session",
		Asset:      "btc",
		Ticks:      5,
		LastTickMs: time.Now().UnixMilli(),
	}
}

func newTestServer(t *testing.T, engine SnapshotSource, store WindowStore) *httptest.Server {
	t.Helper()
	srv := NewServer(Config{Addr: ":0"}, engine, store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestHealthOK(t *testing.T) {
	engine := &fakeEngine{health: runningHealth()}
	store := &fakeStore{stats: map[string]interface{}{"settled_windows": 3}}
	ts := newTestServer(t, engine, store)

	status, body := get(t, ts.URL+"/api/health")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatal(err)
	}
	if string(parsed["status"]) != `"ok"` {
		t.Errorf("status field = %s", parsed["status"])
	}
	if _, ok := parsed["windows"]; !ok {
		t.Error("health should include window stats when a store is wired")
	}
}

func TestHealthDegraded(t *testing.T) {
	h := runningHealth()
	h.LastTickMs = time.Now().Add(-time.Minute).UnixMilli()
	ts := newTestServer(t, &fakeEngine{health: h}, nil)

	_, body := get(t, ts.URL+"/api/health")
	if !strings.Contains(body, `"status":"degraded"`) {
		t.Errorf("body = %s", body)
	}
}

func TestHealthStopped(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{health: assistant.Health{Running: false}}, nil)

	_, body := get(t, ts.URL+"/api/health")
	if !strings.Contains(body, `"status":"stopped"`) {
		t.Errorf("body = %s", body)
	}
}

func TestSnapshotNotReady(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{health: runningHealth()}, nil)

	status, body := get(t, ts.URL+"/api/snapshot")
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", status)
	}
	if !strings.Contains(body, "no snapshot") {
		t.Errorf("body = %s", body)
	}
}

func TestSnapshotServed(t *testing.T) {
	up := 0.61
	snap := &assistant.Snapshot{
		Timestamp: 1_700_000_130_000,
		Asset:     "btc",
		SelectedMarket: &assistant.SelectedMarket{
			Question: "Bitcoin Up or Down",
			Slug:     "btc-updown-15m-1700000100",
			UpPrice:  &up,
		},
		AlignedHistory: []series.AlignedPoint{},
	}
	ts := newTestServer(t, &fakeEngine{snap: snap, health: runningHealth()}, nil)

	resp, err := http.Get(ts.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	var decoded assistant.Snapshot
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.SelectedMarket == nil || decoded.SelectedMarket.Slug != snap.SelectedMarket.Slug {
		t.Errorf("decoded = %+v", decoded.SelectedMarket)
	}
}

func TestWindowsLimit(t *testing.T) {
	store := &fakeStore{recs: []database.WindowRecord{{Slug: "btc-updown-15m-1700000100", Outcome: "up"}}}
	ts := newTestServer(t, &fakeEngine{health: runningHealth()}, store)

	status, body := get(t, ts.URL+"/api/windows?limit=5")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if store.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", store.gotLimit)
	}
	if !strings.Contains(body, `"count":1`) {
		t.Errorf("body = %s", body)
	}

	get(t, ts.URL+"/api/windows")
	if store.gotLimit != 20 {
		t.Errorf("default limit = %d, want 20", store.gotLimit)
	}

	get(t, ts.URL+"/api/windows?limit=9999")
	if store.gotLimit != 200 {
		t.Errorf("clamped limit = %d, want 200", store.gotLimit)
	}
}

func TestWindowsDisabled(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{health: runningHealth()}, nil)

	status, body := get(t, ts.URL+"/api/windows")
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", status)
	}
	if !strings.Contains(body, "disabled") {
		t.Errorf("body = %s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{health: runningHealth()}, nil)

	resp, err := http.Post(ts.URL+"/api/snapshot", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{health: runningHealth()}, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/snapshot", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("ACAO = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
