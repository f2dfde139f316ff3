package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/emberguard/internal/app"
	"github.com/ayusman/emberguard/internal/config"
	"github.com/ayusman/emberguard/internal/log"
	"github.com/ayusman/emberguard/internal/response"
)

// upload is one request received by the fake reporting endpoint.
type upload struct {
	payload  response.Payload
	hasImage bool
}

func newReportEndpoint(t *testing.T) (*httptest.Server, <-chan upload) {
	t.Helper()
	uploads := make(chan upload, 4)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var u upload
		if err := json.Unmarshal([]byte(r.FormValue("data")), &u.payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f, _, err := r.FormFile("image"); err == nil {
			data, _ := io.ReadAll(f)
			f.Close()
			u.hasImage = len(data) > 0
		}
		uploads <- u
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ts.Close)
	return ts, uploads
}

// writeHook installs a shell hook that appends each request to out.
func writeHook(t *testing.T, dir, out string) {
	t.Helper()
	hookDir := filepath.Join(dir, "record")
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat >> " + out + "\necho >> " + out + "\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(hookDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"record","version":"1.0.0","executable":"run.sh","events":["fire_detected"]}`
	if err := os.WriteFile(filepath.Join(hookDir, "hook.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestE2E_FireResponse(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("hooks are shell scripts")
	}

	tmpDir := t.TempDir()
	endpoint, uploads := newReportEndpoint(t)
	hooksDir := filepath.Join(tmpDir, "hooks")
	hookOut := filepath.Join(tmpDir, "hook.out")
	writeHook(t, hooksDir, hookOut)

	cfg := config.Default()
	cfg.Device.ID = "e2e-1"
	cfg.Device.Simulate = true
	cfg.Device.WorkDir = filepath.Join(tmpDir, "work")
	cfg.Simulation.IgniteAfter = 300 * time.Millisecond
	cfg.Scan.Settle = 0
	cfg.Tracking.EntrySettle = time.Millisecond
	cfg.Tracking.MoveSettle = time.Millisecond
	cfg.Tracking.Suppression = 20 * time.Millisecond
	cfg.Trigger.Interval = 20 * time.Millisecond
	cfg.Trigger.RetryDelay = 20 * time.Millisecond
	cfg.Actuator.AlarmBeeps = 1
	cfg.Actuator.AlarmInterval = time.Millisecond
	cfg.Report.Endpoint = endpoint.URL
	cfg.Hooks.Dir = hooksDir
	cfg.Server.Addr = ""
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	a, err := app.New(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer a.Close()

	api := httptest.NewServer(a.Handler())
	defer api.Close()
	client := api.Client()

	url := "ws" + strings.TrimPrefix(api.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var got upload
	t.Run("ReportUploaded", func(t *testing.T) {
		select {
		case got = <-uploads:
		case <-time.After(10 * time.Second):
			t.Fatal("no report received")
		}
		if !got.payload.FireDetected || got.payload.BestDetection == nil {
			t.Fatalf("payload = %+v", got.payload)
		}
		if got.payload.BestDetection.Label != "MM" {
			t.Errorf("best = %s, want MM", got.payload.BestDetection.Label)
		}
		if len(got.payload.ScanResults) != 9 {
			t.Errorf("scan results = %d, want 9", len(got.payload.ScanResults))
		}
		if !got.hasImage {
			t.Error("centered image not uploaded")
		}
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	t.Run("FireWentOut", func(t *testing.T) {
		// It may have reignited since; cooldown keeps a second episode away
		if a.Scene().Suppressed() != 1 {
			t.Errorf("suppressed = %d, want 1", a.Scene().Suppressed())
		}
	})

	var episodeID string
	t.Run("EpisodeListed", func(t *testing.T) {
		resp, err := client.Get(api.URL + "/api/episodes")
		if err != nil {
			t.Fatalf("GET /api/episodes error = %v", err)
		}
		defer resp.Body.Close()

		var listed struct {
			Episodes []struct {
				ID           string `json:"id"`
				Trigger      string `json:"trigger"`
				FireDetected bool   `json:"fire_detected"`
			} `json:"episodes"`
		}
		json.NewDecoder(resp.Body).Decode(&listed)
		if len(listed.Episodes) != 1 {
			t.Fatalf("episodes = %+v", listed.Episodes)
		}
		ep := listed.Episodes[0]
		if ep.Trigger != "critical" || !ep.FireDetected {
			t.Errorf("episode = %+v", ep)
		}
		episodeID = ep.ID
	})

	t.Run("EpisodeDetail", func(t *testing.T) {
		resp, err := client.Get(api.URL + "/api/episodes/" + episodeID)
		if err != nil {
			t.Fatalf("GET episode error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var detail struct {
			Result response.Payload `json:"result"`
		}
		json.NewDecoder(resp.Body).Decode(&detail)
		if len(detail.Result.ScanResults) != 9 {
			t.Errorf("scan results = %d, want 9", len(detail.Result.ScanResults))
		}
	})

	t.Run("Artifact", func(t *testing.T) {
		resp, err := client.Get(api.URL + "/api/artifact")
		if err != nil {
			t.Fatalf("GET /api/artifact error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("content type = %q", ct)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := client.Get(api.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		for _, want := range []string{
			`emberguard_episode_total{trigger="critical"} 1`,
			`emberguard_episode_suppressions_total 1`,
		} {
			if !strings.Contains(string(body), want) {
				t.Errorf("metrics missing %q", want)
			}
		}
	})

	t.Run("HookRan", func(t *testing.T) {
		data, err := os.ReadFile(hookOut)
		if err != nil {
			t.Fatalf("hook output: %v", err)
		}
		if !strings.Contains(string(data), `"event":"fire_detected"`) || !strings.Contains(string(data), episodeID) {
			t.Errorf("hook input = %s", data)
		}
	})

	t.Run("LiveEvents", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		sawReading, sawEpisode := false, false
		for !(sawReading && sawEpisode) {
			var ev struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&ev); err != nil {
				t.Fatalf("ReadJSON() error = %v (reading=%v episode=%v)", err, sawReading, sawEpisode)
			}
			switch ev.Type {
			case "reading":
				sawReading = true
			case "episode":
				sawEpisode = true
			}
		}
	})
}
