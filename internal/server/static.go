package server

import (
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// handleStatic serves the embedded single-page UI. "/" maps to index.html;
// unknown files are 404 so API typos do not silently return the page.
func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	if h.assets == nil {
		http.Error(w, "UI assets not available", http.StatusServiceUnavailable)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	file, err := h.assets.Open(name)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Failed to read asset", http.StatusInternalServerError)
		return
	}
	if stat.IsDir() {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	if !strings.HasSuffix(name, ".html") {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}

	if seeker, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, stat.ModTime(), seeker)
		return
	}
	_, _ = io.Copy(w, file)
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(name, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(name, ".js"):
		return "application/javascript; charset=utf-8"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".ico"):
		return "image/x-icon"
	}
	return "application/octet-stream"
}
