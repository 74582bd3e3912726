package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/storage"
)

func newUploadApp(t *testing.T) *App {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "http://localhost:8080/static", "sign-secret")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return &App{
		Config: &infra.Config{},
		Logger: infra.Logger(zerolog.New(io.Discard)),
		Store:  store,
	}
}

func uploadRequest(body []byte, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req.WithContext(middleware.ContextWithUser(req.Context(), "owner-1", "free"))
}

func TestUploadInput(t *testing.T) {
	app := newUploadApp(t)

	req := uploadRequest([]byte("png-bytes"), "image/png")
	rec := httptest.NewRecorder()
	app.UploadInput(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Path, "uploads/owner-1/") {
		t.Fatalf("path = %q", resp.Path)
	}
	if resp.SignedURL == "" {
		t.Fatal("signed url missing")
	}

	data, err := app.Store.Read(req.Context(), resp.Path)
	if err != nil {
		t.Fatalf("stored upload unreadable: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("stored bytes = %q", data)
	}
}

func TestUploadInputRejections(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        int
	}{
		{"unsupported type", []byte("gif"), "image/gif", http.StatusUnsupportedMediaType},
		{"missing type", []byte("data"), "", http.StatusUnsupportedMediaType},
		{"empty body", nil, "image/jpeg", http.StatusBadRequest},
		{"oversized body", bytes.Repeat([]byte("a"), maxUploadBytes+1), "image/jpeg", http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newUploadApp(t)
			rec := httptest.NewRecorder()
			app.UploadInput(rec, uploadRequest(tc.body, tc.contentType))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
