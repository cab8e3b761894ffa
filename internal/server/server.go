// Package server exposes the flasher over HTTP: a JSON API to choose an image
// source and start a flash, and a WebSocket stream of status updates.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/moffa90/go-b003flash/bootloader"
	"github.com/moffa90/go-b003flash/image"
	"github.com/moffa90/go-b003flash/internal/logging"
	"github.com/moffa90/go-b003flash/protocol"
)

// maxUploadMemory is the part of a multipart upload kept in memory; the rest
// is spooled to disk by net/http.
const maxUploadMemory = 32 << 20

// Options configures a Server.
type Options struct {
	Driver         protocol.Driver
	Logger         *slog.Logger
	HTTPClient     *http.Client
	AllowedOrigins []string
	VendorID       uint16
	ProductID      uint16
}

// Server serves the flashing API.
type Server struct {
	flasher *bootloader.Flasher
	hub     *hub
	client  *http.Client
	logger  *slog.Logger
	origins []string
}

// New creates a Server driving opts.Driver.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := newHub()
	return &Server{
		flasher: bootloader.New(opts.Driver,
			bootloader.WithStatusCallback(h.publish),
			bootloader.WithLogger(logging.Adapter{L: logger}),
			bootloader.WithDeviceIDs(opts.VendorID, opts.ProductID),
		),
		hub:     h,
		client:  client,
		logger:  logger,
		origins: origins,
	}
}

// Flasher returns the underlying flasher.
func (s *Server) Flasher() *bootloader.Flasher {
	return s.flasher
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(cors(s.origins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/source", s.getSource)
		r.Get("/status", s.getStatus)
		r.Post("/flash", s.postFlash)
		r.Post("/acknowledge", s.postAcknowledge)
	})
	r.Get("/ws/status", s.statusStream)

	return r
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type sourceResponse struct {
	External      bool   `json:"external"`
	URL           string `json:"url,omitempty"`
	Warning       string `json:"warning,omitempty"`
	PickerEnabled bool   `json:"picker_enabled"`
}

// getSource reports which image source a page loaded with the same query
// string would use. A trusted ?image= URL hides the file picker.
func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	remote, ok := image.FromQuery(r.URL.Query())
	if !ok {
		writeJSON(w, http.StatusOK, sourceResponse{PickerEnabled: true})
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{
		External: true,
		URL:      remote.URL(),
		Warning:  remote.Warning(),
	})
}

type failureBody struct {
	Kind        bootloader.ErrorKind `json:"kind"`
	Code        *int                 `json:"code,omitempty"`
	Message     string               `json:"message"`
	Remediation string               `json:"remediation,omitempty"`
	FailedAt    bootloader.State     `json:"failed_at"`
}

func newFailureBody(ferr *bootloader.FlashError) *failureBody {
	body := &failureBody{
		Kind:        ferr.Kind,
		Message:     ferr.Message(),
		Remediation: ferr.Remediation(),
		FailedAt:    ferr.State,
	}
	if ferr.HasCode {
		code := ferr.Code
		body.Code = &code
	}
	return body
}

type statusResponse struct {
	Status  string       `json:"status"`
	Active  string       `json:"active_session,omitempty"`
	Pending *failureBody `json:"pending,omitempty"`
}

func (s *Server) currentStatus() statusResponse {
	resp := statusResponse{
		Status: s.flasher.Status(),
		Active: s.flasher.Active(),
	}
	if p := s.flasher.Pending(); p != nil {
		resp.Pending = newFailureBody(p)
	}
	return resp
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentStatus())
}

func (s *Server) postAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.flasher.Acknowledge()
	writeJSON(w, http.StatusOK, s.currentStatus())
}

type flashResponse struct {
	SessionID    string           `json:"session_id"`
	State        bootloader.State `json:"state"`
	Status       string           `json:"status"`
	Source       string           `json:"source"`
	BytesWritten int              `json:"bytes_written"`
	Checksum     string           `json:"checksum"`
	ElapsedMS    int64            `json:"elapsed_ms"`
	Failure      *failureBody     `json:"failure,omitempty"`
}

// postFlash runs one session synchronously. The image is either the trusted
// ?image= URL or the multipart "file" field; both at once is rejected.
func (s *Server) postFlash(w http.ResponseWriter, r *http.Request) {
	src, err := s.sourceFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.flasher.Flash(r.Context(), src)

	var ferr *bootloader.FlashError
	switch {
	case err == nil:
	case errors.Is(err, bootloader.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &ferr):
	default:
		s.logger.Error("flash request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := flashResponse{
		SessionID:    res.SessionID,
		State:        res.State,
		Status:       s.flasher.Status(),
		Source:       res.Source,
		BytesWritten: res.BytesWritten,
		Checksum:     fmt.Sprintf("0x%04X", res.Checksum),
		ElapsedMS:    res.ElapsedTime.Milliseconds(),
	}
	if ferr != nil {
		body.Failure = newFailureBody(ferr)
		writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) sourceFromRequest(r *http.Request) (image.Source, error) {
	remote, external := image.FromQuery(r.URL.Query(), image.WithHTTPClient(s.client))

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("invalid upload: %w", err)
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		if external {
			return nil, errors.New("file upload is disabled while an external image is selected")
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return image.FromBytes(header.Filename, data), nil
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		if external {
			return remote, nil
		}
		return image.NoFile(), nil
	default:
		return nil, fmt.Errorf("invalid upload: %w", err)
	}
}

// statusStream sends the current status, then every update, until the
// client goes away.
func (s *Server) statusStream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			s.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	ctx := ws.CloseRead(r.Context())

	initial := s.currentStatus()
	if err := wsjson.Write(ctx, ws, initial); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			if err := wsjson.Write(ctx, ws, ev); err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				return
			}
		}
	}
}
