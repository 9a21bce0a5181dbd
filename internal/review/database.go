package review

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/receipt-review/internal/scanning"
)

const (
	captureBucketName  = "captures"
	resultBucketName   = "results"
	settingsBucketName = "settings"
	handoffBucketName  = "handoff"

	settingsKey = "settings"
	handoffKey  = "current"
)

// DB defines the interface for database operations
type DB interface {
	// SaveCapture saves a capture to the database
	SaveCapture(capture *Capture) error

	// GetCapture retrieves a capture by ID
	GetCapture(id string) (*Capture, error)

	// SaveResult mirrors the reviewed record of a capture
	SaveResult(captureID string, record *scanning.InvoiceRecord) error

	// GetResult retrieves the mirrored record of a capture
	GetResult(captureID string) (*scanning.InvoiceRecord, error)

	// GetSettings returns the stored settings, or empty settings when none were saved
	GetSettings() (*Settings, error)

	// SaveSettings replaces the stored settings
	SaveSettings(settings *Settings) error

	// SaveLastVendor records the most recently used vendor without touching the API keys
	SaveLastVendor(vendor scanning.Vendor) error

	// GetHandoff returns the pending handoff, or nil when there is none
	GetHandoff() (*Handoff, error)

	// SaveHandoff replaces the pending handoff
	SaveHandoff(handoff *Handoff) error

	// ClearHandoff removes the pending handoff
	ClearHandoff() error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{captureBucketName, resultBucketName, settingsBucketName, handoffBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) put(bucketName, key string, value any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucketName, err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// get decodes the value stored under key into out and reports whether it existed
func (b *BoltDB) get(bucketName, key string, out any) (bool, error) {
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}

// SaveCapture saves a capture to the database
func (b *BoltDB) SaveCapture(capture *Capture) error {
	return b.put(captureBucketName, capture.ID, capture)
}

// GetCapture retrieves a capture by ID
func (b *BoltDB) GetCapture(id string) (*Capture, error) {
	var capture Capture
	found, err := b.get(captureBucketName, id, &capture)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoCapture, id)
	}
	return &capture, nil
}

// SaveResult mirrors the reviewed record of a capture
func (b *BoltDB) SaveResult(captureID string, record *scanning.InvoiceRecord) error {
	return b.put(resultBucketName, captureID, record)
}

// GetResult retrieves the mirrored record of a capture
func (b *BoltDB) GetResult(captureID string) (*scanning.InvoiceRecord, error) {
	var record scanning.InvoiceRecord
	found, err := b.get(resultBucketName, captureID, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, captureID)
	}
	return &record, nil
}

// GetSettings returns the stored settings, or empty settings when none were saved
func (b *BoltDB) GetSettings() (*Settings, error) {
	settings := Settings{}
	if _, err := b.get(settingsBucketName, settingsKey, &settings); err != nil {
		return nil, err
	}
	if settings.APIKeys == nil {
		settings.APIKeys = make(map[scanning.Vendor]string)
	}
	return &settings, nil
}

// SaveSettings replaces the stored settings
func (b *BoltDB) SaveSettings(settings *Settings) error {
	return b.put(settingsBucketName, settingsKey, settings)
}

// SaveLastVendor records the most recently used vendor. The stored settings
// are re-read inside the same transaction so concurrent key changes survive.
func (b *BoltDB) SaveLastVendor(vendor scanning.Vendor) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucketName))

		settings := Settings{}
		if data := bucket.Get([]byte(settingsKey)); data != nil {
			if err := json.Unmarshal(data, &settings); err != nil {
				return fmt.Errorf("unmarshaling settings: %w", err)
			}
		}
		settings.LastVendor = vendor

		data, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("marshaling settings: %w", err)
		}
		return bucket.Put([]byte(settingsKey), data)
	})
}

// GetHandoff returns the pending handoff, or nil when there is none
func (b *BoltDB) GetHandoff() (*Handoff, error) {
	var handoff Handoff
	found, err := b.get(handoffBucketName, handoffKey, &handoff)
	if err != nil || !found {
		return nil, err
	}
	return &handoff, nil
}

// SaveHandoff replaces the pending handoff
func (b *BoltDB) SaveHandoff(handoff *Handoff) error {
	return b.put(handoffBucketName, handoffKey, handoff)
}

// ClearHandoff removes the pending handoff
func (b *BoltDB) ClearHandoff() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(handoffBucketName)).Delete([]byte(handoffKey))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
