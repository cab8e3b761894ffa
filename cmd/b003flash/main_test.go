package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moffa90/go-b003flash/image"
)

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "none.yaml")
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "usage: b003flash") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunWithoutDriver(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"-config", missingConfig(t), writeImage(t, []byte{1})}
	if code := run(args, strings.NewReader(""), &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRunSimulatedLocal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"-config", missingConfig(t), "-simulate", writeImage(t, make([]byte, 2048))}

	if code := run(args, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stdout=%q stderr=%q", code, stdout.String(), stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Opening device", "Chip Info acquired", "Writing Image...", "Done!", "2.0 kB"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestRunSimulatedOpenFailure(t *testing.T) {
	t.Setenv("B003_SIM_FAIL_STEP", "open")

	var stdout, stderr bytes.Buffer
	args := []string{"-config", missingConfig(t), "-simulate", writeImage(t, []byte{1})}

	if code := run(args, strings.NewReader(""), &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "Failed opening device") || !strings.Contains(out, "plugdev") {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunRemote(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xAA, 0xBB})
	}))
	defer files.Close()

	tests := []struct {
		name     string
		yes      bool
		wantCode int
		wantOut  string
	}{
		{name: "accepted with -yes", yes: true, wantCode: 0, wantOut: "Done!"},
		{name: "refused without terminal", yes: false, wantCode: 1, wantOut: "pass -yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"-config", missingConfig(t), "-simulate"}
			if tt.yes {
				args = append(args, "-yes")
			}
			args = append(args, files.URL+"/app.bin")

			var stdout, stderr bytes.Buffer
			if code := run(args, strings.NewReader(""), &stdout, &stderr); code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d; stdout=%q", code, tt.wantCode, stdout.String())
			}
			out := stdout.String()
			if !strings.Contains(out, image.UntrustedWarning) {
				t.Errorf("warning not shown: %q", out)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("stdout missing %q: %q", tt.wantOut, out)
			}
		})
	}
}

func TestSourceFor(t *testing.T) {
	src, err := sourceFor("firmware.bin", http.DefaultClient)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind() != image.KindLocal {
		t.Errorf("kind = %v, want local", src.Kind())
	}

	src, err = sourceFor("HTTPS://example.com/FW.BIN", http.DefaultClient)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind() != image.KindRemote {
		t.Errorf("kind = %v, want remote", src.Kind())
	}

	if _, err := sourceFor("https://example.com/fw.hex", http.DefaultClient); err == nil {
		t.Error("expected untrusted URL to be rejected")
	}
}
