package hook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeHook creates a hook directory holding a shell script and manifest.
func writeHook(t *testing.T, dir, name, script string, events ...string) *Hook {
	t.Helper()

	hookDir := filepath.Join(dir, name)
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}

	scriptPath := filepath.Join(hookDir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	manifest := Manifest{
		Name:       name,
		Version:    "1.0.0",
		Executable: "run.sh",
		Events:     events,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	return &Hook{Manifest: manifest, Path: hookDir, Executable: scriptPath}
}

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
}

func TestExecutor_Execute(t *testing.T) {
	skipOnWindows(t)

	h := writeHook(t, t.TempDir(), "ok", `#!/bin/sh
cat <<'EOF'
{"success":true,"data":{"message":"logged"}}
EOF
`, EventEpisode)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{Event: EventEpisode})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !resp.Success {
		t.Errorf("expected success=true, got false")
	}

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "logged" {
		t.Errorf("expected message 'logged', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	skipOnWindows(t)

	h := writeHook(t, t.TempDir(), "echo", `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`, EventEpisode)

	req := &Request{
		Event:    EventFireDetected,
		DeviceID: "unit-1",
		Episode:  Episode{ID: "ep-42"},
		Config:   json.RawMessage(`{"channel":"ops"}`),
	}
	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data.Received.Event != EventFireDetected {
		t.Errorf("expected event %q, got %q", EventFireDetected, data.Received.Event)
	}
	if data.Received.Episode.ID != "ep-42" || data.Received.DeviceID != "unit-1" {
		t.Errorf("unexpected request echoed: %+v", data.Received)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	skipOnWindows(t)

	h := writeHook(t, t.TempDir(), "slow", `#!/bin/sh
sleep 10
echo '{"success":true}'
`, EventEpisode)

	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), h, &Request{})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got: %v", err)
	}
}

func TestExecutor_ErrorResponse(t *testing.T) {
	skipOnWindows(t)

	h := writeHook(t, t.TempDir(), "fail", `#!/bin/sh
echo '{"success":false,"error":"webhook rejected"}'
`, EventEpisode)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if resp.Success {
		t.Errorf("expected success=false, got true")
	}
	if resp.Error != "webhook rejected" {
		t.Errorf("expected error 'webhook rejected', got %q", resp.Error)
	}
}

func TestExecutor_InvalidJSON(t *testing.T) {
	skipOnWindows(t)

	h := writeHook(t, t.TempDir(), "garbage", `#!/bin/sh
echo 'not json'
`, EventEpisode)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{})
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got: %v", err)
	}
}

func TestExecutor_NonZeroExit(t *testing.T) {
	skipOnWindows(t)

	h := writeHook(t, t.TempDir(), "crash", `#!/bin/sh
echo 'boom' >&2
exit 3
`, EventEpisode)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected error with stderr, got: %v", err)
	}
}
