// Package group implements the group registry (C9): lifecycle of
// permission-scope groups, reserved-group bootstrap, and name<->id lookup
// on top of a storage.GroupStore.
package group

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gimel-foundation/authcore/pkg/audit"
	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/storage"
)

// reservedNames is the set ensure_reserved_groups bootstraps.
var reservedNames = []string{model.ReservedPublic, model.ReservedAdmin}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Registry is the group registry.
type Registry struct {
	store   storage.GroupStore
	now     Clock
	audit   *audit.Logger
	metrics *obsmetrics.Recorder
}

// Options configures a Registry.
type Options struct {
	// AutoBootstrap runs ensure_reserved_groups during New when true.
	AutoBootstrap bool
	Clock         Clock

	// Audit, when set, receives an entry for every bootstrap, create and
	// make_defunct call. Nil disables audit logging.
	Audit *audit.Logger

	// Metrics, when set, records operation counts. Nil disables metrics
	// recording.
	Metrics *obsmetrics.Recorder
}

// New constructs a Registry over store. When opts.AutoBootstrap is true it
// ensures the reserved groups exist before returning.
func New(ctx context.Context, store storage.GroupStore, opts Options) (*Registry, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	r := &Registry{store: store, now: clock, audit: opts.Audit, metrics: opts.Metrics}
	if opts.AutoBootstrap {
		if err := r.EnsureReservedGroups(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) logAudit(ctx context.Context, entry *audit.Entry) {
	if r.audit == nil {
		return
	}
	r.audit.Log(ctx, entry)
}

func (r *Registry) recordOperation(operation, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordGroupOperation(operation, status)
}

// EnsureReservedGroups creates any of "public"/"admin" that don't already
// exist as active groups. Idempotent: re-running is a no-op. Safe against
// concurrent registry construction on the same backend because each
// reserved group is created only after a read finds it missing; the
// backend's put is the only point of truth for uniqueness.
func (r *Registry) EnsureReservedGroups(ctx context.Context) error {
	for _, name := range reservedNames {
		existing, err := r.store.GetByName(ctx, name)
		if err != nil {
			r.recordOperation("bootstrap", "storage_error")
			return autherrors.Wrap(autherrors.KindTokenService, "failed to look up reserved group", err)
		}
		if existing != nil && existing.IsActive {
			continue
		}

		g := &model.Group{
			ID:         uuid.NewString(),
			Name:       name,
			IsActive:   true,
			IsReserved: true,
			CreatedAt:  r.now().UTC(),
		}
		if err := r.store.Put(ctx, g.ID, g); err != nil {
			r.recordOperation("bootstrap", "storage_error")
			return autherrors.Wrap(autherrors.KindTokenService, "failed to bootstrap reserved group", err)
		}
		r.logAudit(ctx, audit.NewEntry(audit.TypeGroup).
			WithActor("registry", audit.ActorSystem).
			WithAction(audit.ActionGroupBootstrap).
			WithTarget(g.ID, "group").
			WithResult(audit.ResultSuccess).
			WithMetadata("name", g.Name))
		r.recordOperation("bootstrap", "success")
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CreateGroup validates name, checks uniqueness among active groups, and
// persists a new Group.
func (r *Registry) CreateGroup(ctx context.Context, name, description string) (*model.Group, error) {
	normalized := normalizeName(name)
	if normalized == "" {
		r.recordOperation("create", "validation_error")
		return nil, autherrors.New(autherrors.KindValidation, "group name must not be empty")
	}
	if model.IsReservedName(normalized) {
		r.recordOperation("create", "validation_error")
		return nil, autherrors.New(autherrors.KindValidation, "group name is reserved").WithField("name", normalized)
	}

	existing, err := r.store.GetByName(ctx, normalized)
	if err != nil {
		r.recordOperation("create", "storage_error")
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to check group uniqueness", err)
	}
	if existing != nil && existing.IsActive {
		r.recordOperation("create", "conflict")
		return nil, autherrors.New(autherrors.KindConflict, "group name already in use").WithField("name", normalized)
	}

	g := &model.Group{
		ID:          uuid.NewString(),
		Name:        normalized,
		Description: description,
		IsActive:    true,
		IsReserved:  false,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.Put(ctx, g.ID, g); err != nil {
		r.recordOperation("create", "storage_error")
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to persist group", err)
	}
	r.logAudit(ctx, audit.NewEntry(audit.TypeGroup).
		WithActor("registry", audit.ActorSystem).
		WithAction(audit.ActionGroupCreate).
		WithTarget(g.ID, "group").
		WithResult(audit.ResultSuccess).
		WithMetadata("name", g.Name))
	r.recordOperation("create", "success")
	return g, nil
}

// GetGroup returns the group with id, or nil if absent.
func (r *Registry) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	g, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to load group", err)
	}
	return g, nil
}

// GetGroupByName returns the group with name (case-insensitive), or nil.
func (r *Registry) GetGroupByName(ctx context.Context, name string) (*model.Group, error) {
	g, err := r.store.GetByName(ctx, normalizeName(name))
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to load group by name", err)
	}
	return g, nil
}

// MakeDefunct soft-deletes the group with id: is_active=false,
// defunct_at=now. Refuses reserved groups. Idempotent.
func (r *Registry) MakeDefunct(ctx context.Context, id string) error {
	g, err := r.store.Get(ctx, id)
	if err != nil {
		r.recordOperation("make_defunct", "storage_error")
		return autherrors.Wrap(autherrors.KindTokenService, "failed to load group", err)
	}
	if g == nil {
		r.recordOperation("make_defunct", "not_found")
		return autherrors.New(autherrors.KindInvalidGroup, "group not found").WithField("id", id)
	}
	if g.IsReserved {
		r.recordOperation("make_defunct", "validation_error")
		return autherrors.New(autherrors.KindValidation, "reserved groups cannot be made defunct").WithField("id", id)
	}
	if !g.IsActive {
		r.recordOperation("make_defunct", "already_defunct")
		return nil
	}

	now := r.now().UTC()
	g.IsActive = false
	g.DefunctAt = &now
	if err := r.store.Put(ctx, g.ID, g); err != nil {
		r.recordOperation("make_defunct", "storage_error")
		return autherrors.Wrap(autherrors.KindTokenService, "failed to persist defunct group", err)
	}
	r.logAudit(ctx, audit.NewEntry(audit.TypeGroup).
		WithActor("registry", audit.ActorSystem).
		WithAction(audit.ActionGroupDefunct).
		WithTarget(g.ID, "group").
		WithResult(audit.ResultSuccess).
		WithMetadata("name", g.Name))
	r.recordOperation("make_defunct", "success")
	return nil
}

// ListGroups returns every group, optionally including defunct ones.
func (r *Registry) ListGroups(ctx context.Context, includeDefunct bool) ([]*model.Group, error) {
	all, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to list groups", err)
	}
	out := make([]*model.Group, 0, len(all))
	for _, g := range all {
		if !includeDefunct && !g.IsActive {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}
