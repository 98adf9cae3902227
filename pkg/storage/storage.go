// Package storage defines the protocol every backend implements, and a
// factory that builds a (TokenStore, GroupStore) pair from a Config without
// the caller needing to know which backend it got.
package storage

import (
	"context"

	"github.com/gimel-foundation/authcore/pkg/model"
)

// TokenStore is the contract every token storage backend implements.
// Get/GetByName return (nil, nil) when the record is absent; any other
// error is a storage fault (wrapped as autherrors.KindStorageUnavailable by
// the backend).
type TokenStore interface {
	Get(ctx context.Context, id string) (*model.TokenRecord, error)
	GetByName(ctx context.Context, name string) (*model.TokenRecord, error)
	Put(ctx context.Context, id string, record *model.TokenRecord) error
	Exists(ctx context.Context, id string) (bool, error)
	ExistsName(ctx context.Context, name string) (bool, error)
	ListAll(ctx context.Context) (map[string]*model.TokenRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Reload(ctx context.Context) error
}

// GroupStore is the contract every group storage backend implements, with
// the same shape as TokenStore plus a name index lookup.
type GroupStore interface {
	Get(ctx context.Context, id string) (*model.Group, error)
	GetByName(ctx context.Context, name string) (*model.Group, error)
	Put(ctx context.Context, id string, group *model.Group) error
	Exists(ctx context.Context, id string) (bool, error)
	ExistsName(ctx context.Context, name string) (bool, error)
	ListAll(ctx context.Context) (map[string]*model.Group, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Reload(ctx context.Context) error
}
