package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestDoctorAction_AllPass(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	setXCredentials(t)
	_, srv := newFakeEngine(t)
	writeSpeakConfig(t, dir, srv.URL)
	writeTestFile(t, filepath.Join(dir, "data.json"), testFeed)

	out, err := captureStdout(t, func() error { return doctorAction(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "[ OK ] X credentials for @someone")
	requireContains(t, out, "[ OK ] voicevox engine 0.21.1")
	requireContains(t, out, "(3 items)")
	requireContains(t, out, "All checks passed.")
}

func TestDoctorAction_Failures(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	t.Setenv("X_USERNAME", "")
	t.Setenv("X_AUTH_TOKEN", "")
	t.Setenv("X_CT0", "")
	writeSpeakConfig(t, dir, "http://127.0.0.1:1")

	out, err := captureStdout(t, func() error { return doctorAction(&cobra.Command{}, nil) })
	if err == nil {
		t.Fatal("expected failed checks")
	}
	requireContains(t, out, "[FAIL] missing X credentials")
	requireContains(t, out, "[FAIL] voicevox engine at http://127.0.0.1:1")
	requireContains(t, out, "[FAIL] news feed")
	if strings.Contains(out, "All checks passed") {
		t.Error("reported success despite failures")
	}
}

func TestDoctorAction_BadConfig(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	writeTestFile(t, filepath.Join(dir, "config.yaml"), "speak:\n  input_format: csv\n")

	out, err := captureStdout(t, func() error { return doctorAction(&cobra.Command{}, nil) })
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, out, "[FAIL] config.yaml")
}
