// Package vaultstore implements storage.TokenStore and storage.GroupStore
// over a vaultkv.Client, laying records out as individual secrets under a
// caller-supplied prefix.
package vaultstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/vaultkv"
)

const groupIndexPath = "_index/names"

// kv is the subset of vaultkv.Client a store needs, narrowed for testing.
type kv interface {
	ReadSecret(ctx context.Context, path string) (map[string]interface{}, error)
	WriteSecret(ctx context.Context, path string, data map[string]interface{}) error
	DeleteSecret(ctx context.Context, path string, hard bool) error
	ListSecrets(ctx context.Context, path string) ([]string, error)
}

// TokenStore is a vault-backed storage.TokenStore. Each record lives at
// {prefix}/tokens/{id}; GetByName is a linear scan over ListAll, since the
// store keeps no secondary name index for tokens (see design notes on the
// tradeoff between index upkeep and the rarity of name lookups).
type TokenStore struct {
	client kv
	prefix string
}

// NewTokenStore builds a TokenStore rooted at prefix (e.g. "authcore").
func NewTokenStore(client *vaultkv.Client, prefix string) *TokenStore {
	return &TokenStore{client: client, prefix: prefix}
}

func (s *TokenStore) tokenPath(id string) string {
	return fmt.Sprintf("%s/tokens/%s", s.prefix, id)
}

func recordFromData(data map[string]interface{}) (*model.TokenRecord, error) {
	if data == nil {
		return nil, nil
	}
	raw, ok := data["record"].(string)
	if !ok {
		return nil, autherrors.New(autherrors.KindStorageUnavailable, "vault secret missing record payload")
	}
	var rec model.TokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to decode token record", err)
	}
	return &rec, nil
}

func (s *TokenStore) Get(ctx context.Context, id string) (*model.TokenRecord, error) {
	data, err := s.client.ReadSecret(ctx, s.tokenPath(id))
	if err != nil {
		return nil, err
	}
	return recordFromData(data)
}

func (s *TokenStore) GetByName(ctx context.Context, name string) (*model.TokenRecord, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, nil
}

func (s *TokenStore) Put(ctx context.Context, id string, record *model.TokenRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to encode token record", err)
	}
	return s.client.WriteSecret(ctx, s.tokenPath(id), map[string]interface{}{"record": string(raw)})
}

func (s *TokenStore) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	return rec != nil, err
}

func (s *TokenStore) ExistsName(ctx context.Context, name string) (bool, error) {
	rec, err := s.GetByName(ctx, name)
	return rec != nil, err
}

func (s *TokenStore) ListAll(ctx context.Context) (map[string]*model.TokenRecord, error) {
	ids, err := s.client.ListSecrets(ctx, s.prefix+"/tokens")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.TokenRecord, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *TokenStore) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := s.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	return true, s.client.DeleteSecret(ctx, s.tokenPath(id), true)
}

func (s *TokenStore) Clear(ctx context.Context) error {
	all, err := s.ListAll(ctx)
	if err != nil {
		return err
	}
	for id := range all {
		if err := s.client.DeleteSecret(ctx, s.tokenPath(id), true); err != nil {
			return err
		}
	}
	return nil
}

func (s *TokenStore) Len(ctx context.Context) (int, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Reload is a no-op: every read already goes straight to the remote store.
func (s *TokenStore) Reload(ctx context.Context) error {
	return nil
}
