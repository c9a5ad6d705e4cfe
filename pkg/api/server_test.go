package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/james-see/polydrum/pkg/midi"
	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/render"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const kickJSON = `{
  "bpm": 120,
  "timeSignature": "4/4",
  "bars": 1,
  "notes": [
    {"instrument": "KICK", "step": 0, "velocity": 1.0},
    {"instrument": "SNARE", "step": 4.4, "velocity": 2.0},
    {"instrument": "SNARE", "step": 4, "velocity": 0.5},
    {"instrument": "RIDE", "step": 99, "velocity": 0.5}
  ]
}`

func newTestServer() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := render.DefaultOptions()
	opts.SampleRate = 8000
	opts.Tail = 0.5
	opts.Logger = logger
	return NewServer(render.New(opts, nil), pattern.Electronic, logger).Router()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	h := newTestServer()
	for _, path := range []string{"/health", "/api/v1/health"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != "healthy" || body["service"] != "polydrum" {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestCatalogEndpoints(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/api/v1/kits", []string{`"ACOUSTIC"`, `"INDUSTRIAL"`, `"default":"ELECTRONIC"`}},
		{"/api/v1/instruments", []string{`"HIHAT_OPEN"`, `"midi":46`, `"hatOpen.wav"`}},
		{"/api/v1/time-signatures", []string{`"7/8"`, `"13/8"`}},
	}

	h := newTestServer()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, h, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			for _, s := range tt.want {
				if !strings.Contains(w.Body.String(), s) {
					t.Errorf("body %s missing %s", w.Body.String(), s)
				}
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	w := do(t, newTestServer(), httptest.NewRequest(http.MethodOptions, "/api/v1/export/midi", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestSanitize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns/sanitize", strings.NewReader(kickJSON))
	w := do(t, newTestServer(), req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var p pattern.Pattern
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.TotalSteps != 16 || p.SubdivisionsPerBeat != 4 {
		t.Errorf("TotalSteps = %d, SubdivisionsPerBeat = %d", p.TotalSteps, p.SubdivisionsPerBeat)
	}
	want := []pattern.Note{
		{Instrument: pattern.Kick, Step: 0, Velocity: 1},
		{Instrument: pattern.Snare, Step: 4, Velocity: 1},
	}
	if len(p.Notes) != len(want) {
		t.Fatalf("notes = %+v, want %+v", p.Notes, want)
	}
	for i := range want {
		if p.Notes[i] != want[i] {
			t.Errorf("note %d = %+v, want %+v", i, p.Notes[i], want[i])
		}
	}
}

func TestSanitizeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"bpm":`},
		{"no notes", `{"bpm":120,"timeSignature":"4/4","bars":1,"notes":[]}`},
		{"bad meter", `{"bpm":120,"timeSignature":"4/5","bars":1,"notes":[{"instrument":"KICK","step":0,"velocity":1}]}`},
	}

	h := newTestServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns/sanitize", strings.NewReader(tt.body))
			w := do(t, h, req)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body = %s", w.Body.String())
			}
		})
	}
}

func TestExportMIDI(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/export/midi", strings.NewReader(kickJSON))
	w := do(t, newTestServer(), req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/midi" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "pattern.mid") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("MThd")) {
		t.Errorf("body does not start with MThd")
	}
}

func TestExportWAV(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"default kit", "", http.StatusOK},
		{"industrial", "?kit=industrial", http.StatusOK},
		{"unknown kit", "?kit=jazz", http.StatusBadRequest},
		{"acoustic without samples", "?kit=ACOUSTIC", http.StatusServiceUnavailable},
	}

	h := newTestServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/export/wav"+tt.query, strings.NewReader(kickJSON))
			w := do(t, h, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			if ct := w.Header().Get("Content-Type"); ct != "audio/wav" {
				t.Errorf("Content-Type = %q", ct)
			}
			// 2s loop plus 0.5s tail at 8kHz, stereo 16-bit.
			if got, want := w.Body.Len(), 44+20000*4; got != want {
				t.Errorf("len = %d, want %d", got, want)
			}
		})
	}
}

func multipartMIDI(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "groove.mid")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func TestImportMIDI(t *testing.T) {
	src := &pattern.Pattern{
		BPM:                 96,
		TimeSignature:       "5/8",
		SubdivisionsPerBeat: 4,
		TotalSteps:          10,
		Bars:                1,
		Notes: []pattern.Note{
			{Instrument: pattern.Kick, Step: 0, Velocity: 1},
			{Instrument: pattern.TomLow, Step: 7, Velocity: 1},
		},
	}
	data, err := midi.NewEncoder().Encode(src)
	if err != nil {
		t.Fatal(err)
	}

	body, ct := multipartMIDI(t, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/midi", body)
	req.Header.Set("Content-Type", ct)
	w := do(t, newTestServer(), req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var p pattern.Pattern
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.TimeSignature != "5/8" || p.TotalSteps != 10 || p.BPM != 96 {
		t.Errorf("pattern = %+v", p)
	}
	if p.Description != "imported from groove.mid" {
		t.Errorf("Description = %q", p.Description)
	}
	if len(p.Notes) != 2 || p.Notes[1].Instrument != pattern.TomLow || p.Notes[1].Step != 7 {
		t.Errorf("notes = %+v", p.Notes)
	}
}

func TestImportMIDIErrors(t *testing.T) {
	h := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/midi", nil)
	if w := do(t, h, req); w.Code != http.StatusBadRequest {
		t.Errorf("no file: status = %d, want 400", w.Code)
	}

	body, ct := multipartMIDI(t, []byte("garbage"))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/import/midi", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, h, req); w.Code != http.StatusBadRequest {
		t.Errorf("garbage: status = %d, want 400", w.Code)
	}

	body, ct = multipartMIDI(t, []byte("garbage"))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/import/midi?subdivisions=0", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, h, req); w.Code != http.StatusBadRequest {
		t.Errorf("bad subdivisions: status = %d, want 400", w.Code)
	}
}
