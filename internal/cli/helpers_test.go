package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(reader)
		done <- out
	}()

	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out := <-done
	_ = reader.Close()
	return string(out), runErr
}

// useConfigDir points the commands at dir and resets command flags for the
// duration of the test.
func useConfigDir(t *testing.T, dir string) {
	t.Helper()

	oldConfigDir, oldEnvFile := configDir, envFile
	oldExport := [3]any{exportDays, exportOutput, exportHTML}
	oldSpeak := [4]string{speakInput, speakFormat, speakOutputDir, speakManifest}
	oldLimit := historyLimit
	t.Cleanup(func() {
		configDir, envFile = oldConfigDir, oldEnvFile
		exportDays = oldExport[0].(int)
		exportOutput = oldExport[1].(string)
		exportHTML = oldExport[2].(string)
		speakInput, speakFormat, speakOutputDir, speakManifest = oldSpeak[0], oldSpeak[1], oldSpeak[2], oldSpeak[3]
		historyLimit = oldLimit
	})

	configDir = dir
	envFile = filepath.Join(dir, ".env")
	exportDays, exportOutput, exportHTML = 0, "", ""
	speakInput, speakFormat, speakOutputDir, speakManifest = "", "", "", ""
	historyLimit = 10
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

func setXCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("X_USERNAME", "@someone")
	t.Setenv("X_AUTH_TOKEN", "auth")
	t.Setenv("X_CT0", "csrf")
}
