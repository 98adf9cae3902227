// Package filestore implements storage.TokenStore and storage.GroupStore
// over a single canonical JSON file, with an in-process cache keyed by the
// file's mtime: reads are served from the cache, writes go through and
// update the cached mtime, and Reload re-checks the file on disk.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gimel-foundation/authcore/pkg/model"
)

// TokenStore is a file-backed storage.TokenStore.
type TokenStore struct {
	path string

	mu      sync.Mutex
	records map[string]*model.TokenRecord
	byName  map[string]string
	mtime   time.Time
}

// NewTokenStore opens (or creates) the JSON file at path as a token store.
func NewTokenStore(path string) (*TokenStore, error) {
	s := &TokenStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TokenStore) load() error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		s.records = make(map[string]*model.TokenRecord)
		s.byName = make(map[string]string)
		s.mtime = time.Time{}
		return nil
	}
	if err != nil {
		return err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	records := make(map[string]*model.TokenRecord)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return err
		}
	}

	byName := make(map[string]string, len(records))
	for id, r := range records {
		if r.Name != "" {
			byName[r.Name] = id
		}
	}

	s.records = records
	s.byName = byName
	s.mtime = info.ModTime()
	return nil
}

// reloadLocked re-stats the file and reloads the cache only if the on-disk
// mtime is strictly newer than the one the cache was built from, or the
// file has been removed since the last load.
func (s *TokenStore) reloadLocked() error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		if len(s.records) > 0 {
			s.records = make(map[string]*model.TokenRecord)
			s.byName = make(map[string]string)
			s.mtime = time.Time{}
		}
		return nil
	}
	if err != nil {
		return err
	}
	if !info.ModTime().After(s.mtime) {
		return nil
	}
	return s.load()
}

// persistLocked writes the whole map atomically: encode to a temp file in
// the same directory, then rename over the canonical path so a concurrent
// reader in another process always sees one complete file or the other.
func (s *TokenStore) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	s.mtime = info.ModTime()
	return nil
}

func cloneRecord(r *model.TokenRecord) *model.TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Groups = append([]string(nil), r.Groups...)
	return &c
}

func (s *TokenStore) Get(_ context.Context, id string) (*model.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecord(s.records[id]), nil
}

func (s *TokenStore) GetByName(_ context.Context, name string) (*model.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, nil
	}
	return cloneRecord(s.records[id]), nil
}

func (s *TokenStore) Put(_ context.Context, id string, record *model.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = cloneRecord(record)
	if record.Name != "" {
		s.byName[record.Name] = id
	}
	return s.persistLocked()
}

func (s *TokenStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *TokenStore) ExistsName(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[name]
	return ok, nil
}

func (s *TokenStore) ListAll(_ context.Context) (map[string]*model.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.TokenRecord, len(s.records))
	for id, r := range s.records {
		out[id] = cloneRecord(r)
	}
	return out, nil
}

func (s *TokenStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	delete(s.records, id)
	if r.Name != "" {
		delete(s.byName, r.Name)
	}
	return true, s.persistLocked()
}

func (s *TokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*model.TokenRecord)
	s.byName = make(map[string]string)
	return s.persistLocked()
}

func (s *TokenStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *TokenStore) Reload(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}
