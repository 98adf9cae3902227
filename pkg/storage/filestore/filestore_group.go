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

// GroupStore is a file-backed storage.GroupStore with the same mtime-cached
// reload semantics as TokenStore.
type GroupStore struct {
	path string

	mu     sync.Mutex
	groups map[string]*model.Group
	byName map[string]string
	mtime  time.Time
}

// NewGroupStore opens (or creates) the JSON file at path as a group store.
func NewGroupStore(path string) (*GroupStore, error) {
	s := &GroupStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GroupStore) load() error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		s.groups = make(map[string]*model.Group)
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

	groups := make(map[string]*model.Group)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &groups); err != nil {
			return err
		}
	}

	byName := make(map[string]string, len(groups))
	for id, g := range groups {
		byName[g.Name] = id
	}

	s.groups = groups
	s.byName = byName
	s.mtime = info.ModTime()
	return nil
}

func (s *GroupStore) reloadLocked() error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		if len(s.groups) > 0 {
			s.groups = make(map[string]*model.Group)
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

func (s *GroupStore) persistLocked() error {
	data, err := json.MarshalIndent(s.groups, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".groups-*.tmp")
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

func cloneGroup(g *model.Group) *model.Group {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

func (s *GroupStore) Get(_ context.Context, id string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneGroup(s.groups[id]), nil
}

func (s *GroupStore) GetByName(_ context.Context, name string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, nil
	}
	return cloneGroup(s.groups[id]), nil
}

func (s *GroupStore) Put(_ context.Context, id string, group *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.groups[id]; ok && existing.Name != group.Name {
		delete(s.byName, existing.Name)
	}
	s.groups[id] = cloneGroup(group)
	s.byName[group.Name] = id
	return s.persistLocked()
}

func (s *GroupStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.groups[id]
	return ok, nil
}

func (s *GroupStore) ExistsName(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[name]
	return ok, nil
}

func (s *GroupStore) ListAll(_ context.Context) (map[string]*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.Group, len(s.groups))
	for id, g := range s.groups {
		out[id] = cloneGroup(g)
	}
	return out, nil
}

func (s *GroupStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return false, nil
	}
	delete(s.groups, id)
	delete(s.byName, g.Name)
	return true, s.persistLocked()
}

func (s *GroupStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[string]*model.Group)
	s.byName = make(map[string]string)
	return s.persistLocked()
}

func (s *GroupStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups), nil
}

func (s *GroupStore) Reload(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}
