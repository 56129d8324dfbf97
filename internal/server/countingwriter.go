package server

import (
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

// WriteHeader implements http.ResponseWriter.
func (w *CountingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.statusCode = code
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

// Written reports whether a header or body has been sent.
func (w *CountingWriter) Written() bool {
	return w.wroteHeader
}
