package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"gpx-track-server/pkg/models"

	badger "github.com/dgraph-io/badger/v4"
)

// Count returns the number of registered tracks
func (s *BadgerStorage) Count() int {
	return int(atomic.LoadInt64(&s.trackCount))
}

// Add stores the track metadata and its raw GPX in one transaction
func (s *BadgerStorage) Add(track *models.Track, raw []byte, visible VisibilityFunc) error {
	if track == nil || track.ID == "" {
		return fmt.Errorf("track id is required")
	}

	s.addMu.Lock()
	defer s.addMu.Unlock()

	if visible != nil {
		track.Visible = visible(s.Count() + 1)
	}

	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}

	err = s.updateWithRetry(func(txn *badger.Txn) error {
		if _, err := txn.Get(trackKey(track.ID)); err == nil {
			return ErrTrackExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(trackKey(track.ID), data); err != nil {
			return err
		}
		return txn.Set(gpxKey(track.ID), raw)
	})
	if err != nil {
		return err
	}

	atomic.AddInt64(&s.trackCount, 1)
	return nil
}

// Get returns the track with the given ID
func (s *BadgerStorage) Get(id string) (*models.Track, error) {
	if s.closed() {
		return nil, ErrStorageNotReady
	}

	var track *models.Track
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		track, err = readTrack(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return track, nil
}

// GetGPX returns the raw GPX document of a track
func (s *BadgerStorage) GetGPX(id string) ([]byte, error) {
	if s.closed() {
		return nil, ErrStorageNotReady
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gpxKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrTrackNotFound
			}
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	return raw, err
}

// Remove deletes a track and its GPX document
func (s *BadgerStorage) Remove(id string) error {
	err := s.updateWithRetry(func(txn *badger.Txn) error {
		if _, err := txn.Get(trackKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrTrackNotFound
			}
			return err
		}
		if err := txn.Delete(trackKey(id)); err != nil {
			return err
		}
		return txn.Delete(gpxKey(id))
	})
	if err != nil {
		return err
	}

	atomic.AddInt64(&s.trackCount, -1)
	return nil
}

// SetVisible changes the visibility of a track
func (s *BadgerStorage) SetVisible(id string, visible bool) (*models.Track, error) {
	return s.modifyTrack(id, func(t *models.Track) {
		t.Visible = visible
	})
}

// Toggle flips the visibility of a track
func (s *BadgerStorage) Toggle(id string) (*models.Track, error) {
	return s.modifyTrack(id, func(t *models.Track) {
		t.Visible = !t.Visible
	})
}

// modifyTrack applies fn to a stored track inside a read-modify-write transaction
func (s *BadgerStorage) modifyTrack(id string, fn func(*models.Track)) (*models.Track, error) {
	var updated *models.Track
	err := s.updateWithRetry(func(txn *badger.Txn) error {
		track, err := readTrack(txn, id)
		if err != nil {
			return err
		}
		fn(track)
		if err := writeTrack(txn, track); err != nil {
			return err
		}
		updated = track
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func readTrack(txn *badger.Txn, id string) (*models.Track, error) {
	item, err := txn.Get(trackKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, err
	}

	var track models.Track
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &track)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal track %s: %w", id, err)
	}
	return &track, nil
}

func writeTrack(txn *badger.Txn, track *models.Track) error {
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}
	return txn.Set(trackKey(track.ID), data)
}
