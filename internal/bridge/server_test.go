package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jcallahan/pipedeck/internal/config"
	"github.com/jcallahan/pipedeck/internal/pipeline"
	"github.com/jcallahan/pipedeck/internal/scheduler"
)

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("PIPEDECK_BRIDGE_PORT", "9001")
	t.Setenv("PIPEDECK_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("PIPEDECK_BRIDGE_ENABLED", "false")
	cfg := &config.Config{}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
}

func TestSettingsNormalizeAppliesDefaults(t *testing.T) {
	var s Settings
	s.normalize()
	if s.Host != DefaultHost || s.Port != DefaultPort {
		t.Fatalf("expected default address, got %s:%d", s.Host, s.Port)
	}
	if s.MaxBodyBytes != DefaultMaxBodyBytes || s.ReadTimeout != DefaultReadTimeout {
		t.Fatalf("expected default limits, got %+v", s)
	}
}

func TestControlRequestValidate(t *testing.T) {
	req := ControlRequest{Action: " Start "}
	req.Normalize()
	if req.Action != ActionStart {
		t.Fatalf("normalize should lower-case and trim, got %q", req.Action)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid start request, got %v", err)
	}
	req = ControlRequest{Action: ActionRetry}
	req.Normalize()
	if err := req.Validate(); err == nil {
		t.Fatalf("retry without stage_id must fail validation")
	}
	req = ControlRequest{Action: "reboot"}
	req.Normalize()
	if err := req.Validate(); err == nil {
		t.Fatalf("unknown action must fail validation")
	}
}

func newTestEngine(t *testing.T) (*pipeline.Controller, *scheduler.Scheduler) {
	t.Helper()
	registry, err := pipeline.NewRegistry([]pipeline.StageDefinition{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ctrl, err := pipeline.New(registry,
		pipeline.WithIncrementPolicy(pipeline.StaticIncrementPolicy{InitialProgress: 0, Step: 50}),
		pipeline.WithQueuePolicy(pipeline.StaticQueuePolicy{Delta: 0}),
	)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	// An interval of an hour keeps ticks out of the test's way.
	sched, err := scheduler.New(ctrl, time.Hour)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	t.Cleanup(func() { _ = sched.Stop() })
	return ctrl, sched
}

func newTestServer(t *testing.T) (*Server, *pipeline.Controller) {
	t.Helper()
	ctrl, sched := newTestEngine(t)
	settings := Settings{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0,
		MaxBodyBytes: 1024,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
	}
	srv, err := NewServer(settings, sched, ctrl, ctrl)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return srv, ctrl
}

func TestServerServesHealthAndSnapshot(t *testing.T) {
	srv, ctrl := newTestServer(t)
	base := srv.BaseURL()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}
	var health struct {
		Status   string `json:"status"`
		RunState string `json:"run_state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != string(StatusReady) || health.RunState != string(pipeline.RunIdle) {
		t.Fatalf("unexpected health payload: %+v", health)
	}

	resp, err = http.Get(base + "/snapshot")
	if err != nil {
		t.Fatalf("snapshot request failed: %v", err)
	}
	defer resp.Body.Close()
	var snap pipeline.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.RunID != ctrl.RunID() {
		t.Fatalf("snapshot run id mismatch: %s vs %s", snap.RunID, ctrl.RunID())
	}
	if len(snap.Stages) != 2 {
		t.Fatalf("expected 2 stages in snapshot, got %d", len(snap.Stages))
	}
}

func TestServerAppliesControlActions(t *testing.T) {
	srv, ctrl := newTestServer(t)
	base := srv.BaseURL()

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(base+"/control", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("control request failed: %v", err)
		}
		return resp
	}

	resp := post(`{"action":"start"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 applying start, got %d", resp.StatusCode)
	}
	var applied controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&applied); err != nil {
		t.Fatalf("decode control response: %v", err)
	}
	if applied.RunState != pipeline.RunRunning {
		t.Fatalf("expected running after start, got %s", applied.RunState)
	}
	if ctrl.RunState() != pipeline.RunRunning {
		t.Fatalf("controller did not transition, got %s", ctrl.RunState())
	}

	resp = post(`{"action":"pause"}`)
	resp.Body.Close()
	if ctrl.RunState() != pipeline.RunPaused {
		t.Fatalf("expected paused, got %s", ctrl.RunState())
	}

	resp = post(`{"action":"retry","stage_id":"b"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("retrying a non-errored stage should conflict, got %d", resp.StatusCode)
	}

	resp = post(`{"action":"reboot"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action should 400, got %d", resp.StatusCode)
	}

	resp = post(`not json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid JSON should 400, got %d", resp.StatusCode)
	}
}

func TestServerRejectsWrongMethods(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.BaseURL()
	resp, err := http.Get(base + "/control")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /control should 405, got %d", resp.StatusCode)
	}
	resp, err = http.Post(base+"/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /snapshot should 405, got %d", resp.StatusCode)
	}
}

func TestServerDisabled(t *testing.T) {
	ctrl, sched := newTestEngine(t)
	srv, err := NewServer(Settings{Enabled: false}, sched, ctrl, ctrl)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected disabled server to refuse start")
	}
}
