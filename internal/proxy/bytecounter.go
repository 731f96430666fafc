package proxy

import (
	"io"
	"net/http"
	"sync/atomic"
)

// CountingWriter wraps an http.ResponseWriter to count bytes written.
type CountingWriter struct {
	http.ResponseWriter
	bytesWritten int64
	statusCode   int
	wroteHeader  bool
}

// NewCountingWriter creates a new CountingWriter.
func NewCountingWriter(w http.ResponseWriter) *CountingWriter {
	return &CountingWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// Write implements io.Writer.
func (w *CountingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	atomic.AddInt64(&w.bytesWritten, int64(n))
	return n, err
}

// WriteHeader records the first status code.
func (w *CountingWriter) WriteHeader(code int) {
	if !w.wroteHeader && code >= 200 {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// BytesWritten returns the total bytes written.
func (w *CountingWriter) BytesWritten() int64 {
	return atomic.LoadInt64(&w.bytesWritten)
}

// StatusCode returns the HTTP status code.
func (w *CountingWriter) StatusCode() int {
	return w.statusCode
}

// Flush implements http.Flusher if the underlying writer supports it.
func (w *CountingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// reverse proxy needs to hijack upgraded connections.
func (w *CountingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// CountingReader wraps an io.ReadCloser to count bytes read.
type CountingReader struct {
	io.ReadCloser
	bytesRead int64
}

// NewCountingReader creates a new CountingReader.
func NewCountingReader(r io.ReadCloser) *CountingReader {
	return &CountingReader{ReadCloser: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	atomic.AddInt64(&r.bytesRead, int64(n))
	return n, err
}

// BytesRead returns the total bytes read.
func (r *CountingReader) BytesRead() int64 {
	return atomic.LoadInt64(&r.bytesRead)
}
