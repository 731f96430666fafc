package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCountingWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewCountingWriter(rec)

	n1, err := cw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n1 != 5 {
		t.Errorf("Write returned %d, want 5", n1)
	}
	n2, _ := cw.Write([]byte(" world"))
	if n2 != 6 {
		t.Errorf("Write returned %d, want 6", n2)
	}

	if cw.BytesWritten() != 11 {
		t.Errorf("BytesWritten = %d, want 11", cw.BytesWritten())
	}
	if cw.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", cw.StatusCode(), http.StatusOK)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCountingWriterStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewCountingWriter(rec)

	cw.WriteHeader(http.StatusBadGateway)
	cw.WriteHeader(http.StatusOK) // superfluous, ignored for bookkeeping
	if cw.StatusCode() != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", cw.StatusCode(), http.StatusBadGateway)
	}
}

func TestCountingWriterInformationalStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewCountingWriter(rec)

	cw.WriteHeader(http.StatusContinue)
	cw.WriteHeader(http.StatusCreated)
	if cw.StatusCode() != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", cw.StatusCode(), http.StatusCreated)
	}
}

func TestCountingWriterUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewCountingWriter(rec)
	if cw.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
}

func TestCountingReader(t *testing.T) {
	data := []byte("test data to read")
	reader := NewCountingReader(io.NopCloser(bytes.NewReader(data)))

	buf := make([]byte, 5)
	n, err := reader.Read(buf)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if n != 5 {
		t.Errorf("Read returned %d, want 5", n)
	}

	rest, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if int64(5+len(rest)) != reader.BytesRead() {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead(), 5+len(rest))
	}
	if reader.BytesRead() != int64(len(data)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead(), len(data))
	}
}
