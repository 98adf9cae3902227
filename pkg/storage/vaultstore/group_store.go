package vaultstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/vaultkv"
)

// GroupStore is a vault-backed storage.GroupStore. Each group lives at
// {prefix}/groups/{id}; a singleton secret at {prefix}/groups/_index/names
// maps name -> id so GetByName and ExistsName avoid a full scan.
type GroupStore struct {
	client kv
	prefix string
}

// NewGroupStore builds a GroupStore rooted at prefix.
func NewGroupStore(client *vaultkv.Client, prefix string) *GroupStore {
	return &GroupStore{client: client, prefix: prefix}
}

func (s *GroupStore) groupPath(id string) string {
	return fmt.Sprintf("%s/groups/%s", s.prefix, id)
}

func (s *GroupStore) indexPath() string {
	return fmt.Sprintf("%s/groups/%s", s.prefix, groupIndexPath)
}

func groupFromData(data map[string]interface{}) (*model.Group, error) {
	if data == nil {
		return nil, nil
	}
	raw, ok := data["group"].(string)
	if !ok {
		return nil, autherrors.New(autherrors.KindStorageUnavailable, "vault secret missing group payload")
	}
	var g model.Group
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to decode group", err)
	}
	return &g, nil
}

func (s *GroupStore) readIndex(ctx context.Context) (map[string]string, error) {
	data, err := s.client.ReadSecret(ctx, s.indexPath())
	if err != nil {
		return nil, err
	}
	index := make(map[string]string)
	if data == nil {
		return index, nil
	}
	raw, ok := data["index"].(string)
	if !ok {
		return index, nil
	}
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to decode group name index", err)
	}
	return index, nil
}

func (s *GroupStore) writeIndex(ctx context.Context, index map[string]string) error {
	raw, err := json.Marshal(index)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to encode group name index", err)
	}
	return s.client.WriteSecret(ctx, s.indexPath(), map[string]interface{}{"index": string(raw)})
}

func (s *GroupStore) Get(ctx context.Context, id string) (*model.Group, error) {
	data, err := s.client.ReadSecret(ctx, s.groupPath(id))
	if err != nil {
		return nil, err
	}
	return groupFromData(data)
}

func (s *GroupStore) GetByName(ctx context.Context, name string) (*model.Group, error) {
	index, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := index[name]
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *GroupStore) Put(ctx context.Context, id string, group *model.Group) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(group)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to encode group", err)
	}
	if err := s.client.WriteSecret(ctx, s.groupPath(id), map[string]interface{}{"group": string(raw)}); err != nil {
		return err
	}

	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	if existing != nil && existing.Name != group.Name {
		delete(index, existing.Name)
	}
	index[group.Name] = id
	return s.writeIndex(ctx, index)
}

func (s *GroupStore) Exists(ctx context.Context, id string) (bool, error) {
	g, err := s.Get(ctx, id)
	return g != nil, err
}

func (s *GroupStore) ExistsName(ctx context.Context, name string) (bool, error) {
	g, err := s.GetByName(ctx, name)
	return g != nil, err
}

func (s *GroupStore) ListAll(ctx context.Context) (map[string]*model.Group, error) {
	ids, err := s.client.ListSecrets(ctx, s.prefix+"/groups")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Group, len(ids))
	for _, id := range ids {
		if id == groupIndexPath || id == "_index/" || id == "_index" {
			continue
		}
		g, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out[id] = g
		}
	}
	return out, nil
}

func (s *GroupStore) Delete(ctx context.Context, id string) (bool, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := s.client.DeleteSecret(ctx, s.groupPath(id), true); err != nil {
		return false, err
	}
	index, err := s.readIndex(ctx)
	if err != nil {
		return false, err
	}
	delete(index, existing.Name)
	return true, s.writeIndex(ctx, index)
}

func (s *GroupStore) Clear(ctx context.Context) error {
	all, err := s.ListAll(ctx)
	if err != nil {
		return err
	}
	for id := range all {
		if err := s.client.DeleteSecret(ctx, s.groupPath(id), true); err != nil {
			return err
		}
	}
	return s.writeIndex(ctx, map[string]string{})
}

func (s *GroupStore) Len(ctx context.Context) (int, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Reload is a no-op: every read already goes straight to the remote store.
func (s *GroupStore) Reload(ctx context.Context) error {
	return nil
}
