// Package token implements the token service (C10): JWT signing and
// verification, UUID generation, and the stateful TokenRecord CRUD that
// backs a signed credential. It knows nothing about groups beyond storing
// and returning the name list a caller gave it; group existence and
// activity are validated one layer up, by the auth service.
package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gimel-foundation/authcore/pkg/audit"
	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/storage"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Service is the token lifecycle state machine: create, verify, revoke,
// list, backed by a storage.TokenStore and a fixed HMAC-SHA256 signing key.
type Service struct {
	store    storage.TokenStore
	secret   []byte
	audience string
	now      Clock
	audit    *audit.Logger
	metrics  *obsmetrics.Recorder
}

// Options configures a Service.
type Options struct {
	Secret   []byte
	Audience string
	Clock    Clock

	// Audit, when set, receives an entry for every successful create and
	// revoke; failed calls and already-revoked records produce none.
	// Nil disables audit logging.
	Audit *audit.Logger

	// Metrics, when set, records operation counts and latency. Nil
	// disables metrics recording.
	Metrics *obsmetrics.Recorder
}

// New builds a Service. Secret must be non-empty.
func New(store storage.TokenStore, opts Options) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, autherrors.New(autherrors.KindValidation, "token service requires a non-empty signing secret")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:    store,
		secret:   opts.Secret,
		audience: opts.Audience,
		now:      clock,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
	}, nil
}

func (s *Service) logAudit(ctx context.Context, entry *audit.Entry) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, entry)
}

func (s *Service) recordOperation(operation, status string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordTokenOperation(operation, status)
	s.metrics.ObserveTokenLatency(operation, d)
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	Groups      []string
	TTL         *time.Duration
	Name        string
	Fingerprint string
}

// Create mints a fresh record and returns its signed credential. The
// signed string is never persisted; only the record is.
func (s *Service) Create(ctx context.Context, params CreateParams) (string, *model.TokenRecord, error) {
	start := s.now()
	groups := dedupGroups(params.Groups)

	name := ""
	if params.Name != "" {
		name = normalizeTokenName(params.Name)
		if !validTokenName(name) {
			s.recordOperation("create", "validation_error", s.now().Sub(start))
			return "", nil, autherrors.New(autherrors.KindValidation, "token name has invalid format").WithField("name", name)
		}
		taken, err := s.store.ExistsName(ctx, name)
		if err != nil {
			s.recordOperation("create", "storage_error", s.now().Sub(start))
			return "", nil, autherrors.Wrap(autherrors.KindTokenService, "failed to check token name uniqueness", err)
		}
		if taken {
			s.recordOperation("create", "conflict", s.now().Sub(start))
			return "", nil, autherrors.New(autherrors.KindConflict, "token name already in use").WithField("name", name)
		}
	}

	createdAt := s.now().UTC()
	var expiresAt *time.Time
	if params.TTL != nil {
		exp := createdAt.Add(*params.TTL)
		expiresAt = &exp
	}

	record := &model.TokenRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Groups:      groups,
		Status:      model.TokenActive,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		Fingerprint: params.Fingerprint,
	}

	if err := s.store.Put(ctx, record.ID, record); err != nil {
		s.recordOperation("create", "storage_error", s.now().Sub(start))
		return "", nil, autherrors.Wrap(autherrors.KindTokenService, "failed to persist token record", err)
	}

	signed, err := s.sign(record, createdAt, expiresAt)
	if err != nil {
		s.recordOperation("create", "sign_error", s.now().Sub(start))
		return "", nil, err
	}

	s.logAudit(ctx, audit.NewEntry(audit.TypeToken).
		WithActor("token-service", audit.ActorSystem).
		WithAction(audit.ActionTokenCreate).
		WithTarget(record.ID, "token").
		WithResult(audit.ResultSuccess).
		WithMetadata("name", record.Name))
	s.recordOperation("create", "success", s.now().Sub(start))
	return signed, record, nil
}

func (s *Service) sign(record *model.TokenRecord, issuedAt time.Time, expiresAt *time.Time) (string, error) {
	c := newClaims(record.ID, record.Groups, issuedAt, expiresAt, s.audience)
	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := jwtToken.SignedString(s.secret)
	if err != nil {
		return "", autherrors.Wrap(autherrors.KindTokenValidation, "failed to sign token", err)
	}
	return signed, nil
}

// VerifyParams are the inputs to Verify. The store lookup (revoked/expired
// record check) happens by default; set SkipStore only for a signature-only
// verification that never touches the backend.
type VerifyParams struct {
	SkipStore   bool
	Fingerprint string
}

// Verify parses and validates the signature, audience, nbf and exp, then
// (unless SkipStore is set) checks the backing record.
func (s *Service) Verify(ctx context.Context, signed string, params VerifyParams) (info *model.TokenInfo, err error) {
	start := s.now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		s.recordOperation("verify", status, s.now().Sub(start))
	}()

	parsed, err := jwt.ParseWithClaims(signed, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, autherrors.New(autherrors.KindTokenValidation, "unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithAudience(s.audience))
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenValidation, "token signature or claims invalid", err)
	}
	if parsed == nil || !parsed.Valid {
		return nil, autherrors.New(autherrors.KindTokenValidation, "token is not valid")
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, autherrors.New(autherrors.KindTokenValidation, "unexpected claim shape")
	}

	info = &model.TokenInfo{
		Credential: signed,
		RecordID:   c.ID,
		Groups:     c.Groups,
	}
	if c.IssuedAt != nil {
		info.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		info.ExpiresAt = &exp
	}

	if params.SkipStore {
		return info, nil
	}

	record, err := s.store.Get(ctx, c.ID)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to load token record", err)
	}
	if record == nil {
		return nil, autherrors.New(autherrors.KindTokenNotFound, "token record not found").WithField("jti", c.ID)
	}
	if record.Status == model.TokenRevoked {
		return nil, autherrors.New(autherrors.KindTokenRevoked, "token has been revoked").WithField("jti", c.ID)
	}
	if record.IsExpired(s.now().UTC()) {
		return nil, autherrors.New(autherrors.KindTokenExpired, "token record has expired").WithField("jti", c.ID)
	}
	if params.Fingerprint != "" && record.Fingerprint != "" && params.Fingerprint != record.Fingerprint {
		return nil, autherrors.New(autherrors.KindFingerprintMismatch, "fingerprint does not match token record")
	}

	info.Groups = record.Groups
	return info, nil
}

// Revoke looks up the record carried by signed and revokes it. Returns
// false if it was already revoked.
func (s *Service) Revoke(ctx context.Context, signed string) (bool, error) {
	info, err := s.Verify(ctx, signed, VerifyParams{SkipStore: true})
	if err != nil {
		return false, err
	}
	return s.revokeRecord(ctx, "revoke", info.RecordID, audit.ActionTokenRevoke)
}

// RevokeByName revokes the record with the given alias. Returns false if
// it was already revoked; an unknown name yields a KindTokenNotFound error.
func (s *Service) RevokeByName(ctx context.Context, name string) (bool, error) {
	record, err := s.store.GetByName(ctx, normalizeTokenName(name))
	if err != nil {
		return false, autherrors.Wrap(autherrors.KindTokenService, "failed to look up token by name", err)
	}
	if record == nil {
		return false, autherrors.New(autherrors.KindTokenNotFound, "no token record with that name").WithField("name", name)
	}
	return s.revokeRecord(ctx, "revoke_by_name", record.ID, audit.ActionTokenRevoked)
}

func (s *Service) revokeRecord(ctx context.Context, operation, id string, action audit.Action) (bool, error) {
	start := s.now()
	record, err := s.store.Get(ctx, id)
	if err != nil {
		s.recordOperation(operation, "storage_error", s.now().Sub(start))
		return false, autherrors.Wrap(autherrors.KindTokenService, "failed to load token record", err)
	}
	if record == nil {
		s.recordOperation(operation, "not_found", s.now().Sub(start))
		return false, autherrors.New(autherrors.KindTokenNotFound, "token record not found").WithField("jti", id)
	}
	if record.Status == model.TokenRevoked {
		s.recordOperation(operation, "already_revoked", s.now().Sub(start))
		return false, nil
	}
	now := s.now().UTC()
	record.Status = model.TokenRevoked
	record.RevokedAt = &now
	if err := s.store.Put(ctx, record.ID, record); err != nil {
		s.recordOperation(operation, "storage_error", s.now().Sub(start))
		return false, autherrors.Wrap(autherrors.KindTokenService, "failed to persist revoked token", err)
	}
	s.logAudit(ctx, audit.NewEntry(audit.TypeToken).
		WithActor("token-service", audit.ActorSystem).
		WithAction(action).
		WithTarget(record.ID, "token").
		WithResult(audit.ResultSuccess).
		WithMetadata("name", record.Name))
	s.recordOperation(operation, "success", s.now().Sub(start))
	return true, nil
}

// GetByName returns the record with the given alias, or nil.
func (s *Service) GetByName(ctx context.Context, name string) (*model.TokenRecord, error) {
	record, err := s.store.GetByName(ctx, normalizeTokenName(name))
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to look up token by name", err)
	}
	return record, nil
}

// List returns every record, optionally filtered by status.
func (s *Service) List(ctx context.Context, statusFilter *model.TokenStatus) ([]*model.TokenRecord, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindTokenService, "failed to list token records", err)
	}
	out := make([]*model.TokenRecord, 0, len(all))
	for _, r := range all {
		if statusFilter != nil && r.Status != *statusFilter {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
