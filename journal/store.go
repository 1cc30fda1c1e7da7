// Package journal persists confirmed repayment receipts and idempotency
// records for the dashboard's history and safe-resubmission behaviour.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketReceipts    = []byte("receipts")
	bucketIdempotency = []byte("idempotency")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("journal: record not found")
)

// Store wraps the bbolt database backing the journal.
type Store struct {
	db *bolt.DB
}

// ReceiptRecord captures one confirmed repayment. Amounts are stored as
// decimal strings to keep the on-disk format integer-exact.
type ReceiptRecord struct {
	LoanID      string    `json:"loanId"`
	TxHash      string    `json:"txHash"`
	Amount      string    `json:"amount"`
	LateFine    string    `json:"lateFinePortion"`
	Interest    string    `json:"interestPortion"`
	Principal   string    `json:"principalPortion"`
	Settlement  string    `json:"settlementType"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// IdempotencyRecord stores the cached response for an idempotency key.
type IdempotencyRecord struct {
	StatusCode int       `json:"statusCode"`
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"storedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Open initialises the store at path, creating the top-level buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketReceipts); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendReceipt records a confirmed repayment under its loan.
func (s *Store) AppendReceipt(record ReceiptRecord) error {
	loanID := strings.TrimSpace(record.LoanID)
	if loanID == "" {
		return errors.New("journal: loan id required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		loans := tx.Bucket(bucketReceipts)
		bucket, err := loans.CreateBucketIfNotExists([]byte(loanID))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, payload)
	})
}

// ReceiptsByLoan returns the recorded receipts for a loan, most recent first.
// Limit <= 0 returns everything.
func (s *Store) ReceiptsByLoan(loanID string, limit int) ([]ReceiptRecord, error) {
	var records []ReceiptRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketReceipts).Bucket([]byte(strings.TrimSpace(loanID)))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			var record ReceiptRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return err
			}
			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	return records, err
}

// PutIdempotency caches a response under the given key.
func (s *Store) PutIdempotency(key string, record IdempotencyRecord) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("journal: idempotency key required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), payload)
	})
}

// GetIdempotency loads a cached response. Expired records are treated as
// absent and removed lazily.
func (s *Store) GetIdempotency(key string, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	var record IdempotencyRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(payload, &record); err != nil {
			return err
		}
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return IdempotencyRecord{}, err
	}
	return record, nil
}
