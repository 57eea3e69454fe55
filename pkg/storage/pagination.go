package storage

import (
	"encoding/json"
	"fmt"

	"gpx-track-server/pkg/models"

	badger "github.com/dgraph-io/badger/v4"
)

// List retrieves tracks in insertion order with pagination and filtering.
// Track IDs are time-ordered, so key order is insertion order.
func (s *BadgerStorage) List(limit, offset int, filter *TrackFilter) ([]*models.Track, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidPagination)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", ErrInvalidPagination)
	}
	if s.closed() {
		return nil, ErrStorageNotReady
	}

	tracks := []*models.Track{}
	skipped := 0

	err := s.iterateTracks(func(track *models.Track) bool {
		if !matchesFilter(track, filter) {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		tracks = append(tracks, track)
		return len(tracks) < limit
	})
	if err != nil {
		return nil, err
	}

	return tracks, nil
}

// CountWithFilter returns the number of tracks matching the filter
func (s *BadgerStorage) CountWithFilter(filter *TrackFilter) int {
	if filter == nil {
		return s.Count()
	}

	count := 0
	err := s.iterateTracks(func(track *models.Track) bool {
		if matchesFilter(track, filter) {
			count++
		}
		return true
	})
	if err != nil {
		return 0
	}
	return count
}

// showAllChunkSize bounds the tracks read and rewritten per transaction
const showAllChunkSize = 500

// ShowAll marks every track visible and returns the union of their bounds.
// Each chunk is a read-modify-write transaction, so a concurrent Remove or
// Toggle conflicts with it and the chunk is retried against the new state.
func (s *BadgerStorage) ShowAll() (models.Bounds, int, error) {
	if s.closed() {
		return models.Bounds{}, 0, ErrStorageNotReady
	}

	var (
		bounds models.Bounds
		count  int
		from   = []byte(trackKeyPrefix)
	)
	for from != nil {
		var (
			chunkBounds models.Bounds
			chunkCount  int
			next        []byte
		)
		err := s.updateWithRetry(func(txn *badger.Txn) error {
			var hidden []*models.Track
			var err error
			chunkBounds, chunkCount, hidden, next, err = scanChunk(txn, from)
			if err != nil {
				return err
			}
			for _, track := range hidden {
				track.Visible = true
				if err := writeTrack(txn, track); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return models.Bounds{}, 0, fmt.Errorf("failed to reveal tracks: %w", err)
		}
		bounds = bounds.Extend(chunkBounds)
		count += chunkCount
		from = next
	}

	return bounds, count, nil
}

// scanChunk reads up to showAllChunkSize tracks starting at from. next is the
// first key of the following chunk, or nil when the scan reached the end.
func scanChunk(txn *badger.Txn, from []byte) (bounds models.Bounds, count int, hidden []*models.Track, next []byte, err error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(trackKeyPrefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(from); it.Valid(); it.Next() {
		item := it.Item()
		if count == showAllChunkSize {
			next = item.KeyCopy(nil)
			return bounds, count, hidden, next, nil
		}
		var track models.Track
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &track)
		})
		if err != nil {
			return models.Bounds{}, 0, nil, nil, fmt.Errorf("failed to unmarshal track for key '%s': %w", string(item.Key()), err)
		}
		count++
		bounds = bounds.Extend(track.Bounds)
		if !track.Visible {
			hidden = append(hidden, &track)
		}
	}
	return bounds, count, hidden, nil, nil
}

// iterateTracks calls fn for every stored track in key order until fn returns false
func (s *BadgerStorage) iterateTracks(fn func(*models.Track) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(trackKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var track models.Track
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &track)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal track for key '%s': %w", string(item.Key()), err)
			}
			if !fn(&track) {
				return nil
			}
		}
		return nil
	})
}
