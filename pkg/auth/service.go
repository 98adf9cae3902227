// Package auth implements the auth service (C11): the orchestrator over
// the group registry and the token service. It is the only layer that
// understands both groups and credentials together.
package auth

import (
	"context"
	"time"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/group"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/token"
)

// Service composes a group.Registry and a token.Service.
type Service struct {
	groups *group.Registry
	tokens *token.Service
}

// New builds a Service.
func New(groups *group.Registry, tokens *token.Service) *Service {
	return &Service{groups: groups, tokens: tokens}
}

// CreateTokenParams are the inputs to CreateToken.
type CreateTokenParams struct {
	Groups      []string
	TTL         *time.Duration
	Name        string
	Fingerprint string
	// IncludePublic defaults to true: when true and "public" is absent
	// from Groups, it is inserted once at position 0.
	IncludePublic *bool
}

// CreateToken validates every requested group against the registry, applies
// the implicit-public-group rule, then mints a signed credential.
func (s *Service) CreateToken(ctx context.Context, params CreateTokenParams) (string, *model.TokenRecord, error) {
	groups := append([]string(nil), params.Groups...)

	includePublic := true
	if params.IncludePublic != nil {
		includePublic = *params.IncludePublic
	}
	if includePublic && !containsString(groups, model.ReservedPublic) {
		groups = append([]string{model.ReservedPublic}, groups...)
	}

	for _, name := range groups {
		g, err := s.groups.GetGroupByName(ctx, name)
		if err != nil {
			return "", nil, err
		}
		if g == nil || !g.IsActive {
			return "", nil, autherrors.New(autherrors.KindInvalidGroup, "unknown or inactive group").WithField("group", name)
		}
	}

	return s.tokens.Create(ctx, token.CreateParams{
		Groups:      groups,
		TTL:         params.TTL,
		Name:        params.Name,
		Fingerprint: params.Fingerprint,
	})
}

// VerifyTokenParams are the inputs to VerifyToken.
type VerifyTokenParams struct {
	ValidateGroups bool
	Fingerprint    string
}

// VerifyToken verifies the credential via the token service, then (when
// requested) checks every claimed group still exists and is active.
func (s *Service) VerifyToken(ctx context.Context, signed string, params VerifyTokenParams) (*model.TokenInfo, error) {
	info, err := s.tokens.Verify(ctx, signed, token.VerifyParams{Fingerprint: params.Fingerprint})
	if err != nil {
		return nil, err
	}

	if params.ValidateGroups {
		for _, name := range info.Groups {
			if name == model.ReservedPublic || name == model.ReservedAdmin {
				continue
			}
			g, err := s.groups.GetGroupByName(ctx, name)
			if err != nil {
				return nil, err
			}
			if g == nil || !g.IsActive {
				return nil, autherrors.New(autherrors.KindInvalidGroup, "token references unknown or defunct group").WithField("group", name)
			}
		}
	}

	return info, nil
}

// RevokeToken revokes the credential's backing record.
func (s *Service) RevokeToken(ctx context.Context, signed string) (bool, error) {
	return s.tokens.Revoke(ctx, signed)
}

// RevokeByName revokes the record with the given alias.
func (s *Service) RevokeByName(ctx context.Context, name string) (bool, error) {
	return s.tokens.RevokeByName(ctx, name)
}

// ResolveTokenGroups returns full Group objects for every group the token
// carries, always including "public" regardless of what the credential
// itself claims.
func (s *Service) ResolveTokenGroups(ctx context.Context, signed string) ([]*model.Group, error) {
	info, err := s.tokens.Verify(ctx, signed, token.VerifyParams{})
	if err != nil {
		return nil, err
	}

	names := info.Groups
	if !containsString(names, model.ReservedPublic) {
		names = append([]string{model.ReservedPublic}, names...)
	}

	out := make([]*model.Group, 0, len(names))
	for _, name := range names {
		g, err := s.groups.GetGroupByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, g)
		}
	}
	return out, nil
}

// ListTokens returns every token record, optionally filtered by status.
func (s *Service) ListTokens(ctx context.Context, statusFilter *model.TokenStatus) ([]*model.TokenRecord, error) {
	return s.tokens.List(ctx, statusFilter)
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
