package review

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/receipt-review/internal/overlay"
	"github.com/zombor/receipt-review/internal/scanning"
)

// maxUploadSize bounds receipt uploads; high-resolution phone photos and PDFs fit comfortably
const maxUploadSize = int64(50 << 20) // 50MB

// settingsURL is where a client can fix a missing API key
const settingsURL = "/api/settings"

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an error response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]any{"error": message})
}

// serviceError maps a service error onto an HTTP status
func serviceError(w http.ResponseWriter, err error) {
	var vendorErr *scanning.VendorRequestError
	switch {
	case errors.As(err, &vendorErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":       err.Error(),
			"vendor":      vendorErr.Vendor,
			"status_code": vendorErr.StatusCode,
		})
	case errors.Is(err, scanning.ErrVendorAuthMissing):
		writeJSON(w, http.StatusPreconditionFailed, map[string]any{
			"error":        err.Error(),
			"settings_url": settingsURL,
		})
	case errors.Is(err, ErrRecognitionInProgress):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scanning.ErrUnknownVendor),
		errors.Is(err, scanning.ErrUnknownField),
		errors.Is(err, ErrNoAPIKeys),
		errors.Is(err, ErrUnreadableImage):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrNoCapture), errors.Is(err, ErrNoResult):
		jsonError(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("Request failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// displaySize reads the rendered image size from the width and height query parameters
func displaySize(r *http.Request) (overlay.Size, error) {
	width, err := strconv.Atoi(r.URL.Query().Get("width"))
	if err != nil {
		return overlay.Size{}, errors.New("width must be an integer")
	}
	height, err := strconv.Atoi(r.URL.Query().Get("height"))
	if err != nil {
		return overlay.Size{}, errors.New("height must be an integer")
	}
	return overlay.Size{Width: width, Height: height}, nil
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleGetSettings returns the masked API keys and last vendor
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.Settings()
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings replaces the API keys
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKeys map[string]string `json:"api_keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	keys := make(map[scanning.Vendor]string, len(req.APIKeys))
	for name, key := range req.APIKeys {
		vendor, err := scanning.ParseVendor(name)
		if err != nil {
			serviceError(w, err)
			return
		}
		keys[vendor] = key
	}

	if err := s.service.SaveSettings(keys); err != nil {
		serviceError(w, err)
		return
	}
	s.handleGetSettings(w, r)
}

// contentTypeFor guesses a MIME type from the upload's extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadCapture stores an uploaded receipt image as the current capture
func (s *Server) handleUploadCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	capture, err := s.service.AddCapture(header.Filename, data, contentType)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, capture)
}

// handleResumeCapture returns the capture kept by a discarded review
func (s *Server) handleResumeCapture(w http.ResponseWriter, r *http.Request) {
	capture, err := s.service.ResumeCapture()
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, capture)
}

// handleOpenReview restarts the review of a recognized capture from its mirrored record
func (s *Server) handleOpenReview(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.OpenReview(r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetCaptureFile returns the stored PNG of a capture
func (s *Server) handleGetCaptureFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.CaptureImage(r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// handleRecognize sends a capture to the chosen vendor and starts its review
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Vendor string `json:"vendor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	vendor, err := scanning.ParseVendor(req.Vendor)
	if err != nil {
		serviceError(w, err)
		return
	}

	if _, err := s.service.Recognize(r.Context(), id, vendor); err != nil {
		if errors.Is(err, scanning.ErrMalformedResponse) {
			body := map[string]any{"error": err.Error()}
			if capture, captureErr := s.service.Capture(id); captureErr == nil {
				body["raw_response"] = capture.RawResponse
			}
			writeJSON(w, http.StatusUnprocessableEntity, body)
			return
		}
		serviceError(w, err)
		return
	}

	s.handleGetReview(w, r)
}

// handleGetReview returns the active review
func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.Current()
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleFocusField focuses a field and returns its overlay
func (s *Server) handleFocusField(w http.ResponseWriter, r *http.Request) {
	name, err := scanning.ParseFieldName(r.PathValue("field"))
	if err != nil {
		serviceError(w, err)
		return
	}
	display, err := displaySize(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := s.service.FocusField(name, display)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleResize recomputes the overlay for a new rendered image size
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	display, err := displaySize(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := s.service.Resize(display)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleUnfocusField hides the overlay
func (s *Server) handleUnfocusField(w http.ResponseWriter, r *http.Request) {
	o, err := s.service.UnfocusField()
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleSetFieldValue edits the text of a field
func (s *Server) handleSetFieldValue(w http.ResponseWriter, r *http.Request) {
	name, err := scanning.ParseFieldName(r.PathValue("field"))
	if err != nil {
		serviceError(w, err)
		return
	}

	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.SetFieldValue(name, *req.Value); err != nil {
		serviceError(w, err)
		return
	}
	s.handleGetReview(w, r)
}

// handleExportPreview returns the record exactly as it would be written
func (s *Server) handleExportPreview(w http.ResponseWriter, r *http.Request) {
	exported, err := s.service.ExportPreview()
	if err != nil {
		serviceError(w, err)
		return
	}
	data, err := scanning.MarshalExport(exported)
	if err != nil {
		serviceError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleExport writes the reviewed record and image to the export directory
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Export()
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleDiscard ends the review and returns to the capture stage
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	handoff, err := s.service.Discard()
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handoff)
}
