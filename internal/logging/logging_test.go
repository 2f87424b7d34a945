package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aralia.dev/internal/sim/tuning"
)

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(tuning.LogTuning{Level: "warn"}, "", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer closer.Close()

	log.Info("hidden")
	log.WithField("component", "test").Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "component=test") {
		t.Fatalf("out=%q", out)
	}
}

func TestNew_FileGetsJSON(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	log, closer, err := New(tuning.LogTuning{Level: "debug", File: "logs/server.log", MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, dir, &console)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.WithField("biome", "plains").Debug("resolved")
	log.Trace("too fine")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "logs", "server.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 1 || lines[0]["msg"] != "resolved" || lines[0]["biome"] != "plains" || lines[0]["level"] != "debug" {
		t.Fatalf("lines=%v", lines)
	}
	if !strings.Contains(console.String(), "resolved") {
		t.Fatalf("console=%q", console.String())
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, _, err := New(tuning.LogTuning{Level: "loud"}, "", nil); err == nil {
		t.Fatalf("expected error")
	}
}
