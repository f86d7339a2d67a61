package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type sentMail struct {
	recipient  string
	subject    string
	body       string
	attachment string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(recipient, subject, body, attachmentPath string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentMail{recipient, subject, body, attachmentPath})
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) sentMails() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

type fakeTemplateSource struct {
	templates map[string][3]string // name -> subject, body, attachment path
}

func (f *fakeTemplateSource) Resolve(name string) (string, string, string, error) {
	t, ok := f.templates[name]
	if !ok {
		return "", "", "", errors.New("template not found")
	}
	return t[0], t[1], t[2], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type formFile struct {
	field   string
	name    string
	content string
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func assertFailure(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", rec.Code, status, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if success, _ := body["success"].(bool); success {
		t.Error("failure response marked success")
	}
	if message != "" && body["message"] != message {
		t.Errorf("message = %q, want %q", body["message"], message)
	}
}
