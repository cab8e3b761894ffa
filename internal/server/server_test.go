package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/moffa90/go-b003flash/image"
	"github.com/moffa90/go-b003flash/internal/simdriver"
)

func newTestServer(t *testing.T, cfg simdriver.Config) (*httptest.Server, *simdriver.Driver) {
	t.Helper()
	drv := simdriver.New(cfg)
	s := New(Options{
		Driver: drv,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, drv
}

func uploadRequest(t *testing.T, target, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodPost, target, &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

type flashResult struct {
	SessionID    string `json:"session_id"`
	State        string `json:"state"`
	Status       string `json:"status"`
	BytesWritten int    `json:"bytes_written"`
	Failure      *struct {
		Kind        string `json:"kind"`
		Code        *int   `json:"code"`
		Message     string `json:"message"`
		Remediation string `json:"remediation"`
		FailedAt    string `json:"failed_at"`
	} `json:"failure"`
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	decode(t, resp, &got)
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestGetSource(t *testing.T) {
	srv, _ := newTestServer(t, simdriver.DefaultConfig())

	tests := []struct {
		name         string
		image        string
		wantExternal bool
	}{
		{name: "no image", image: "", wantExternal: false},
		{name: "trusted url", image: "https://example.com/fw.bin", wantExternal: true},
		{name: "untrusted url ignored", image: "https://example.com/fw.hex", wantExternal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := srv.URL + "/api/source"
			if tt.image != "" {
				target += "?image=" + url.QueryEscape(tt.image)
			}
			resp, err := http.Get(target)
			if err != nil {
				t.Fatal(err)
			}

			var got sourceResponse
			decode(t, resp, &got)
			if got.External != tt.wantExternal {
				t.Errorf("External = %v, want %v", got.External, tt.wantExternal)
			}
			if got.PickerEnabled == tt.wantExternal {
				t.Errorf("PickerEnabled = %v with external=%v", got.PickerEnabled, tt.wantExternal)
			}
			if tt.wantExternal && got.Warning != image.UntrustedWarning {
				t.Errorf("Warning = %q", got.Warning)
			}
		})
	}
}

func TestFlashUpload(t *testing.T) {
	srv, drv := newTestServer(t, simdriver.DefaultConfig())
	data := bytes.Repeat([]byte{0x3C}, 4096)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/api/flash", "fw.bin", data))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got flashResult
	decode(t, resp, &got)
	if got.State != "done" || got.Status != "Done!" || got.BytesWritten != 4096 {
		t.Errorf("result = %+v", got)
	}
	if !bytes.Equal(drv.Flash(), data) {
		t.Error("simulated flash does not hold the upload")
	}
}

func TestFlashWithoutFile(t *testing.T) {
	srv, _ := newTestServer(t, simdriver.DefaultConfig())

	resp, err := http.Post(srv.URL+"/api/flash", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	var got flashResult
	decode(t, resp, &got)
	if got.Failure == nil || got.Failure.Kind != "NoImageSupplied" {
		t.Errorf("failure = %+v, want NoImageSupplied", got.Failure)
	}
}

func TestFlashExternalImage(t *testing.T) {
	payload := bytes.Repeat([]byte{0x77}, 256)
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app.bin" {
			_, _ = w.Write(payload)
			return
		}
		http.NotFound(w, r)
	}))
	defer files.Close()

	srv, drv := newTestServer(t, simdriver.DefaultConfig())

	t.Run("success", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/flash?image="+url.QueryEscape(files.URL+"/app.bin"), "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		resp.Body.Close()
		if !bytes.Equal(drv.Flash(), payload) {
			t.Error("simulated flash does not hold the remote image")
		}
	})

	t.Run("fetch 404", func(t *testing.T) {
		opens := drv.Opens()
		resp, err := http.Post(srv.URL+"/api/flash?image="+url.QueryEscape(files.URL+"/missing.bin"), "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", resp.StatusCode)
		}

		var got flashResult
		decode(t, resp, &got)
		if got.Failure == nil || got.Failure.Kind != "FetchFailed" {
			t.Fatalf("failure = %+v, want FetchFailed", got.Failure)
		}
		if got.Failure.Code == nil || *got.Failure.Code != http.StatusNotFound {
			t.Errorf("code = %v, want 404", got.Failure.Code)
		}
		if got.Failure.FailedAt != "identified" {
			t.Errorf("failed_at = %q, want identified", got.Failure.FailedAt)
		}
		if drv.Opens() != opens+1 {
			t.Error("device was not opened before the fetch")
		}
	})

	t.Run("upload rejected", func(t *testing.T) {
		target := srv.URL + "/api/flash?image=" + url.QueryEscape(files.URL+"/app.bin")
		resp, err := http.DefaultClient.Do(uploadRequest(t, target, "fw.bin", []byte{1}))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestOpenFailedAndAcknowledge(t *testing.T) {
	cfg := simdriver.DefaultConfig()
	cfg.FailStep = simdriver.StepOpen
	srv, _ := newTestServer(t, cfg)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/api/flash", "fw.bin", []byte{1, 2}))
	if err != nil {
		t.Fatal(err)
	}
	var got flashResult
	decode(t, resp, &got)
	if got.Failure == nil || got.Failure.Kind != "OpenFailed" {
		t.Fatalf("failure = %+v, want OpenFailed", got.Failure)
	}
	if !strings.Contains(got.Failure.Remediation, "plugdev") {
		t.Errorf("remediation = %q", got.Failure.Remediation)
	}

	resp, err = http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var st statusResponse
	decode(t, resp, &st)
	if st.Pending == nil || st.Status != "Failed opening device" {
		t.Errorf("status = %+v", st)
	}

	resp, err = http.Post(srv.URL+"/api/acknowledge", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	st = statusResponse{}
	decode(t, resp, &st)
	if st.Pending != nil || st.Status != "Not connected" {
		t.Errorf("status after acknowledge = %+v", st)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, simdriver.DefaultConfig())

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusStream(t *testing.T) {
	srv, _ := newTestServer(t, simdriver.DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var initial statusResponse
	if err := wsjson.Read(ctx, conn, &initial); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if initial.Status != "Not connected" {
		t.Errorf("initial status = %q", initial.Status)
	}

	go func() {
		resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/api/flash", "fw.bin", make([]byte, 64)))
		if err == nil {
			resp.Body.Close()
		}
	}()

	var messages []string
	for len(messages) == 0 || messages[len(messages)-1] != "Done!" {
		var ev event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event after %q: %v", messages, err)
		}
		messages = append(messages, ev.Message)
	}

	want := []string{"Opening device", "Device opened", "Interface setup", "Chip Info acquired", "Writing Image...", "Done!"}
	if strings.Join(messages, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %q, want %q", messages, want)
	}
}
