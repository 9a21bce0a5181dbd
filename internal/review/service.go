package review

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-review/internal/overlay"
	"github.com/zombor/receipt-review/internal/scanning"
)

// IDGenerator generates unique IDs for captures
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// State is a snapshot of the active review
type State struct {
	CaptureID string                 `json:"capture_id"`
	Record    scanning.InvoiceRecord `json:"record"`
	Overlay   Overlay                `json:"overlay"`
}

// SettingsView is the settings as shown to a user, with API keys masked
type SettingsView struct {
	APIKeys    map[scanning.Vendor]string `json:"api_keys"`
	LastVendor scanning.Vendor            `json:"last_vendor,omitempty"`
}

// Service handles the capture, recognition and review of receipts
type Service struct {
	db          DB
	captures    Storage
	exports     Storage
	recognizers map[scanning.Vendor]scanning.Recognizer
	idGenerator IDGenerator
	timeSource  TimeSource

	// recognizing is held for the whole vendor call; only one may be in flight
	recognizing sync.Mutex

	// settingsMu serializes read-modify-write cycles on the stored settings
	settingsMu sync.Mutex

	mu      sync.Mutex
	session *Session
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, captures, exports Storage, recognizers ...scanning.Recognizer) *Service {
	return NewServiceWithDeps(db, captures, exports, &uuidGenerator{}, &defaultTimeSource{}, recognizers...)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, captures, exports Storage, idGen IDGenerator, timeSrc TimeSource, recognizers ...scanning.Recognizer) *Service {
	byVendor := make(map[scanning.Vendor]scanning.Recognizer, len(recognizers))
	for _, r := range recognizers {
		byVendor[r.Vendor()] = r
	}

	return &Service{
		db:          db,
		captures:    captures,
		exports:     exports,
		recognizers: byVendor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename reduces an uploaded filename to a short, safe base name without extension
func sanitizeFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	// Truncate phone-generated names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base
}

// exportTimestamp formats t as ISO-8601 UTC with ':' and '.' replaced by '-',
// e.g. 2025-03-15T09-30-00-123Z
func exportTimestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// AddCapture normalizes an uploaded receipt image to PNG and stores it as the
// current capture. Any pending handoff is dropped.
func (s *Service) AddCapture(filename string, data []byte, contentType string) (*Capture, error) {
	img, err := scanning.PrepareImage(data, contentType)
	if err != nil {
		slog.Error("Failed to prepare capture",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("preparing image: %w: %w", ErrUnreadableImage, err)
	}

	id := s.idGenerator.Generate()
	savedName, err := s.captures.Save(fmt.Sprintf("%s_%s.png", id, sanitizeFilename(filename)), img.PNG)
	if err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	capture := &Capture{
		ID:               id,
		Filename:         savedName,
		OriginalFilename: filename,
		Width:            img.Width,
		Height:           img.Height,
		CapturedAt:       s.timeSource.Now(),
	}
	if err := s.db.SaveCapture(capture); err != nil {
		// Clean up file if database save fails
		s.captures.Delete(savedName)
		return nil, fmt.Errorf("saving capture to database: %w", err)
	}

	if err := s.db.ClearHandoff(); err != nil {
		slog.Warn("Failed to clear handoff", "error", err)
	}

	slog.Info("Capture added", "id", id, "width", img.Width, "height", img.Height)
	return capture, nil
}

// Capture retrieves a capture by ID
func (s *Service) Capture(id string) (*Capture, error) {
	capture, err := s.db.GetCapture(id)
	if err != nil {
		return nil, fmt.Errorf("getting capture: %w", err)
	}
	return capture, nil
}

// CaptureImage returns the stored PNG of a capture
func (s *Service) CaptureImage(id string) ([]byte, error) {
	capture, err := s.Capture(id)
	if err != nil {
		return nil, err
	}
	data, err := s.captures.Get(capture.Filename)
	if err != nil {
		return nil, fmt.Errorf("getting capture image: %w", err)
	}
	return data, nil
}

// ResumeCapture returns the capture kept by a discarded review, consuming the
// preserve-image request. ErrNoCapture means the capture stage should start fresh.
func (s *Service) ResumeCapture() (*Capture, error) {
	handoff, err := s.db.GetHandoff()
	if err != nil {
		return nil, fmt.Errorf("getting handoff: %w", err)
	}
	if handoff == nil || !handoff.PreserveImage {
		return nil, ErrNoCapture
	}

	capture, err := s.Capture(handoff.CaptureID)
	if err != nil {
		return nil, err
	}

	handoff.PreserveImage = false
	if err := s.db.SaveHandoff(handoff); err != nil {
		return nil, fmt.Errorf("saving handoff: %w", err)
	}
	return capture, nil
}

// Recognize sends a capture to vendor and starts a review of the normalized
// result. The vendor call is not cancelled when ctx is. If the response cannot
// be normalized the error wraps scanning.ErrMalformedResponse, the raw text is
// kept on the capture and the current review is left as it was.
func (s *Service) Recognize(ctx context.Context, captureID string, vendor scanning.Vendor) (*scanning.InvoiceRecord, error) {
	recognizer, ok := s.recognizers[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", scanning.ErrUnknownVendor, vendor)
	}

	settings, err := s.db.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	apiKey := settings.APIKeys[vendor]
	if apiKey == "" {
		return nil, fmt.Errorf("%w for %s", scanning.ErrVendorAuthMissing, vendor.DisplayName())
	}

	if !s.recognizing.TryLock() {
		return nil, ErrRecognitionInProgress
	}
	defer s.recognizing.Unlock()

	capture, err := s.Capture(captureID)
	if err != nil {
		return nil, err
	}
	image, err := s.captures.Get(capture.Filename)
	if err != nil {
		return nil, fmt.Errorf("getting capture image: %w", err)
	}

	s.settingsMu.Lock()
	err = s.db.SaveLastVendor(vendor)
	s.settingsMu.Unlock()
	if err != nil {
		slog.Warn("Failed to remember vendor", "vendor", vendor, "error", err)
	}

	slog.Info("Recognizing capture", "id", captureID, "vendor", vendor)
	raw, err := recognizer.Recognize(context.WithoutCancel(ctx), image, apiKey)
	if err != nil {
		slog.Error("Recognition failed", "id", captureID, "vendor", vendor, "error", err)
		return nil, fmt.Errorf("recognizing with %s: %w", vendor.DisplayName(), err)
	}

	capture.RawResponse = raw
	capture.Vendor = vendor
	if err := s.db.SaveCapture(capture); err != nil {
		return nil, fmt.Errorf("saving capture to database: %w", err)
	}

	record, err := scanning.Normalize(raw)
	if err != nil {
		slog.Error("Failed to parse recognition response", "id", captureID, "vendor", vendor, "error", err)
		return nil, fmt.Errorf("parsing %s response: %w", vendor.DisplayName(), err)
	}

	if err := s.db.SaveResult(captureID, record); err != nil {
		return nil, fmt.Errorf("saving result to database: %w", err)
	}

	s.mu.Lock()
	s.session = NewSession(captureID, *record, capture.Size())
	s.mu.Unlock()

	return record, nil
}

// OpenReview starts a review of the record mirrored for a capture, restoring
// the edits saved before a restart. ErrNoResult means the capture was never
// recognized.
func (s *Service) OpenReview(captureID string) (*State, error) {
	capture, err := s.Capture(captureID)
	if err != nil {
		return nil, err
	}
	record, err := s.db.GetResult(captureID)
	if err != nil {
		return nil, fmt.Errorf("getting result: %w", err)
	}

	session := NewSession(captureID, *record, capture.Size())

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	slog.Info("Review reopened", "capture_id", captureID)
	return &State{
		CaptureID: captureID,
		Record:    session.Record(),
		Overlay:   session.Overlay(),
	}, nil
}

// withSession runs fn with the active session while holding the session lock
func (s *Service) withSession(fn func(session *Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNoSession
	}
	return fn(s.session)
}

// Current returns a snapshot of the active review
func (s *Service) Current() (*State, error) {
	var state *State
	err := s.withSession(func(session *Session) error {
		state = &State{
			CaptureID: session.CaptureID(),
			Record:    session.Record(),
			Overlay:   session.Overlay(),
		}
		return nil
	})
	return state, err
}

// FocusField focuses a field and returns its overlay for the given rendered image size
func (s *Service) FocusField(name scanning.FieldName, display overlay.Size) (Overlay, error) {
	var o Overlay
	err := s.withSession(func(session *Session) error {
		var err error
		o, err = session.LoadField(name, display)
		return err
	})
	return o, err
}

// Resize recomputes the overlay after the rendered image changed size
func (s *Service) Resize(display overlay.Size) (Overlay, error) {
	var o Overlay
	err := s.withSession(func(session *Session) error {
		o = session.Resize(display)
		return nil
	})
	return o, err
}

// UnfocusField hides the overlay
func (s *Service) UnfocusField() (Overlay, error) {
	var o Overlay
	err := s.withSession(func(session *Session) error {
		o = session.UnfocusField()
		return nil
	})
	return o, err
}

// SetFieldValue edits a field's text and updates the persisted mirror
func (s *Service) SetFieldValue(name scanning.FieldName, value string) error {
	return s.withSession(func(session *Session) error {
		if err := session.SetFieldValue(name, value); err != nil {
			return err
		}
		record := session.Record()
		if err := s.db.SaveResult(session.CaptureID(), &record); err != nil {
			return fmt.Errorf("saving result to database: %w", err)
		}
		return nil
	})
}

// ExportPreview returns the record as it would be exported
func (s *Service) ExportPreview() (scanning.ExportedRecord, error) {
	var exported scanning.ExportedRecord
	err := s.withSession(func(session *Session) error {
		exported = session.Export()
		return nil
	})
	return exported, err
}

// Export writes the reviewed record as JSON, and the captured image as a
// lossless PNG, to the export directory.
func (s *Service) Export() (*ExportResult, error) {
	var result *ExportResult
	err := s.withSession(func(session *Session) error {
		data, err := scanning.MarshalExport(session.Export())
		if err != nil {
			return err
		}

		image, err := s.CaptureImage(session.CaptureID())
		if err != nil {
			return err
		}
		pngData, err := scanning.ReencodePNG(image)
		if err != nil {
			return fmt.Errorf("converting image: %w", err)
		}

		ts := exportTimestamp(s.timeSource.Now())
		jsonName, err := s.exports.Save(fmt.Sprintf("ocr_result_%s.json", ts), data)
		if err != nil {
			return fmt.Errorf("saving export: %w", err)
		}
		imageName, err := s.exports.Save(fmt.Sprintf("receipt_%s.png", ts), pngData)
		if err != nil {
			return fmt.Errorf("saving export image: %w", err)
		}

		result = &ExportResult{
			JSONFile:  s.exports.Path(jsonName),
			ImageFile: s.exports.Path(imageName),
		}
		slog.Info("Exported review", "capture_id", session.CaptureID(), "json", result.JSONFile, "image", result.ImageFile)
		return nil
	})
	return result, err
}

// Discard ends the active review and hands the record back to the capture
// stage, asking it to keep the captured image.
func (s *Service) Discard() (*Handoff, error) {
	var handoff *Handoff
	err := s.withSession(func(session *Session) error {
		var err error
		handoff, err = session.DiscardAndReturn()
		if err != nil {
			return err
		}
		if err := s.db.SaveHandoff(handoff); err != nil {
			return fmt.Errorf("saving handoff: %w", err)
		}
		s.session = nil
		return nil
	})
	return handoff, err
}

// MaskAPIKey hides all but the first and last four characters of key. Keys of
// eight characters or fewer are hidden entirely.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Settings returns the stored settings with every API key masked
func (s *Service) Settings() (*SettingsView, error) {
	settings, err := s.db.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}

	view := &SettingsView{
		APIKeys:    make(map[scanning.Vendor]string, len(scanning.Vendors)),
		LastVendor: settings.LastVendor,
	}
	for _, vendor := range scanning.Vendors {
		view.APIKeys[vendor] = MaskAPIKey(settings.APIKeys[vendor])
	}
	return view, nil
}

// SaveSettings replaces the API keys. A submitted value equal to the mask of
// the stored key keeps the stored key. At least one key must remain.
func (s *Service) SaveSettings(keys map[scanning.Vendor]string) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.db.GetSettings()
	if err != nil {
		return fmt.Errorf("getting settings: %w", err)
	}

	updated := make(map[scanning.Vendor]string, len(scanning.Vendors))
	for _, vendor := range scanning.Vendors {
		key := strings.TrimSpace(keys[vendor])
		if stored := settings.APIKeys[vendor]; stored != "" && key == MaskAPIKey(stored) {
			key = stored
		}
		if key != "" {
			updated[vendor] = key
		}
	}
	if len(updated) == 0 {
		return ErrNoAPIKeys
	}

	settings.APIKeys = updated
	if err := s.db.SaveSettings(settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// SeedAPIKeys stores keys supplied at startup, leaving other vendors' keys alone
func (s *Service) SeedAPIKeys(keys map[scanning.Vendor]string) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.db.GetSettings()
	if err != nil {
		return fmt.Errorf("getting settings: %w", err)
	}

	if settings.APIKeys == nil {
		settings.APIKeys = make(map[scanning.Vendor]string)
	}

	changed := false
	for vendor, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || settings.APIKeys[vendor] == key {
			continue
		}
		settings.APIKeys[vendor] = key
		changed = true
	}
	if !changed {
		return nil
	}

	if err := s.db.SaveSettings(settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
