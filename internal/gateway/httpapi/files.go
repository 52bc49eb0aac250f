package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// UploadResponse is the JSON response for POST /upload.
type UploadResponse struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// handleUpload accepts one multipart file under the "file" field and stores
// it in the workspace root, where subsequent commands can read it.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}
	if g.limiter != nil {
		release, err := g.limiter.Acquire(clientKey(r))
		if err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		defer release()
	}

	// Cap the whole request body, not just the in-memory parse buffer.
	r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize)
	if err := r.ParseMultipartForm(g.config.MaxRequestSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the request size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	path, err := g.ws.SaveUpload(header.Filename, file)
	if err != nil {
		g.logger.Error("upload failed",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}

	if g.config.Metrics != nil {
		g.config.Metrics.FilesUploadedTotal.Inc()
	}
	g.logger.Info("file uploaded",
		slog.String("filename", filepath.Base(path)),
		slog.Int64("size", header.Size),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Filename: filepath.Base(path),
		Path:     path,
	})
}

// handleDownload serves a file from the workspace. The requested path is
// everything after /download/ and may contain subdirectories; anything that
// resolves outside the workspace is rejected.
func (g *Gateway) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}
	if g.limiter != nil {
		release, err := g.limiter.Acquire(clientKey(r))
		if err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		defer release()
	}

	name := strings.TrimPrefix(r.URL.Path, "/download/")
	if name == "" || name == r.URL.Path {
		writeError(w, http.StatusBadRequest, "file name is required")
		return
	}

	path, err := g.ws.Resolve(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	if g.config.Metrics != nil {
		g.config.Metrics.FilesDownloadedTotal.Inc()
	}
	g.logger.Info("file downloaded",
		slog.String("filename", name),
		slog.Int64("size", info.Size()),
	)

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorBody{Error: msg})
}
