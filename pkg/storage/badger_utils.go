package storage

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const maxTxnRetries = 5

func trackKey(id string) []byte {
	return []byte(trackKeyPrefix + id)
}

func gpxKey(id string) []byte {
	return []byte(gpxKeyPrefix + id)
}

// applyBackoffDelay waits 2^attempt milliseconds, capped at 32ms
func applyBackoffDelay(attempt int) {
	backoffTime := time.Duration(1<<uint(attempt)) * time.Millisecond
	if backoffTime > 32*time.Millisecond {
		backoffTime = 32 * time.Millisecond
	}
	time.Sleep(backoffTime)
}

// isRetryableTransactionError checks if an error is a retryable transaction conflict
func isRetryableTransactionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, badger.ErrConflict) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction Conflict") ||
		strings.Contains(errStr, "transaction conflict")
}

// updateWithRetry runs fn in a read-write transaction, retrying conflicts
func (s *BadgerStorage) updateWithRetry(fn func(txn *badger.Txn) error) error {
	if s.closed() {
		return ErrStorageNotReady
	}

	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(fn)
		if err != nil && isRetryableTransactionError(err) && attempt < maxTxnRetries-1 {
			applyBackoffDelay(attempt)
			continue
		}
		break
	}
	return err
}

func (s *BadgerStorage) closed() bool {
	return atomic.LoadInt32(&s.isClosed) == 1
}

// countTracksInDB counts track keys without loading values
func (s *BadgerStorage) countTracksInDB() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(trackKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
