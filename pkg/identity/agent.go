// Package identity implements the identity agent (C13): the runtime
// credentials holder long-running services use to authenticate against
// the remote KV store and keep their session token renewed.
package identity

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gimel-foundation/authcore/pkg/audit"
	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/obstracing"
	"github.com/gimel-foundation/authcore/pkg/vaultkv"
)

// State is the agent's authentication lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateNeedsRelogin
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateNeedsRelogin:
		return "needs_relogin"
	default:
		return "unauthenticated"
	}
}

// renewBackoff is the retry schedule start_renewal uses after a renewal
// failure: two retries at 1s then 4s before giving up and requiring relogin.
var renewBackoff = []time.Duration{1 * time.Second, 4 * time.Second}

// Credentials is the {role_id, secret_id} pair read from the credentials
// file at construction.
type Credentials struct {
	RoleID   string `json:"role_id"`
	SecretID string `json:"secret_id"`
}

// Agent holds a machine identity's session lifecycle: login, background
// renewal, and a mutex-guarded authenticated client handle.
type Agent struct {
	creds     Credentials
	vaultCfg  vaultkv.Config
	newClient func(vaultkv.Config) (*vaultkv.Client, error)
	log       *logrus.Entry
	audit     *audit.Logger
	metrics   *obsmetrics.Recorder
	name      string

	mu         sync.RWMutex
	state      State
	client     *vaultkv.Client
	sessionTTL time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures an Agent.
type Options struct {
	VaultAddress    string
	VaultMountPoint string
	VaultTimeout    time.Duration
	VaultVerifySSL  bool
	Logger          *logrus.Logger

	// Name identifies this agent in audit entries. Defaults to "identity-agent".
	Name string
	// Audit, when set, receives an entry for every login, renew and relogin
	// transition. Nil disables audit logging.
	Audit *audit.Logger

	// Metrics, when set, counts login/renew/relogin events. Nil disables
	// metrics recording.
	Metrics *obsmetrics.Recorder

	// Tracer, when set, is threaded into the vaultkv client this agent
	// authenticates. Nil disables tracing.
	Tracer *obstracing.Provider
}

// LoadCredentials reads a {role_id, secret_id} JSON file from path.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to read credentials file", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, autherrors.Wrap(autherrors.KindValidation, "failed to decode credentials file", err)
	}
	return creds, nil
}

// New builds an Agent from credentials and options, unauthenticated.
func New(creds Credentials, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	name := opts.Name
	if name == "" {
		name = "identity-agent"
	}
	return &Agent{
		creds: creds,
		vaultCfg: vaultkv.Config{
			Address:    opts.VaultAddress,
			MountPoint: opts.VaultMountPoint,
			Timeout:    opts.VaultTimeout,
			VerifySSL:  opts.VaultVerifySSL,
			RoleID:     creds.RoleID,
			SecretID:   creds.SecretID,
			Metrics:    opts.Metrics,
			Tracer:     opts.Tracer,
		},
		newClient: vaultkv.NewClient,
		log:       logger.WithField("component", "identity_agent"),
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		name:      name,
		state:     StateUnauthenticated,
	}
}

func (a *Agent) logAudit(ctx context.Context, action audit.Action, result audit.Result) {
	if a.audit == nil {
		return
	}
	a.audit.Log(ctx, audit.NewEntry(audit.TypeAgent).
		WithActor(a.name, audit.ActorService).
		WithAction(action).
		WithResult(result))
}

func (a *Agent) recordEvent(event string, result audit.Result) {
	if a.metrics == nil {
		return
	}
	status := "success"
	if result != audit.ResultSuccess {
		status = "failure"
	}
	a.metrics.RecordAgentEvent(event, status)
}

// Login exchanges the role-id/secret-id for a fresh authenticated client
// and session TTL.
func (a *Agent) Login(ctx context.Context) error {
	client, err := a.newClient(a.vaultCfg)
	if err != nil {
		a.setState(StateUnauthenticated)
		a.logAudit(ctx, audit.ActionAgentLogin, audit.ResultFailure)
		a.recordEvent("login", audit.ResultFailure)
		return err
	}

	ttl, err := client.SessionTokenTTL(ctx)
	if err != nil {
		a.setState(StateUnauthenticated)
		a.logAudit(ctx, audit.ActionAgentLogin, audit.ResultFailure)
		a.recordEvent("login", audit.ResultFailure)
		return err
	}

	a.mu.Lock()
	a.client = client
	a.sessionTTL = ttl
	a.state = StateAuthenticated
	a.mu.Unlock()
	a.logAudit(ctx, audit.ActionAgentLogin, audit.ResultSuccess)
	a.recordEvent("login", audit.ResultSuccess)
	return nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// GetClient returns a client whose session token is always current. If the
// agent needs a relogin (after renewal exhausted its retries), it logs in
// fresh before returning.
func (a *Agent) GetClient(ctx context.Context) (*vaultkv.Client, error) {
	a.mu.RLock()
	state := a.state
	client := a.client
	a.mu.RUnlock()

	if state == StateNeedsRelogin || client == nil {
		if err := a.Login(ctx); err != nil {
			return nil, err
		}
		a.mu.RLock()
		client = a.client
		a.mu.RUnlock()
	}
	return client, nil
}

// StartRenewal spawns a background task that sleeps TTL*0.75, renews, and
// on failure retries per renewBackoff before transitioning to
// StateNeedsRelogin. Call Stop to cancel it.
func (a *Agent) StartRenewal(ctx context.Context) {
	renewalCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go a.renewalLoop(renewalCtx, done)
}

func (a *Agent) renewalLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		a.mu.RLock()
		ttl := a.sessionTTL
		a.mu.RUnlock()
		if ttl <= 0 {
			ttl = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(float64(ttl) * 0.75)):
		}

		if err := a.renewWithRetries(ctx); err != nil {
			a.log.WithError(err).Warn("renewal failed after retries, agent needs relogin")
			a.setState(StateNeedsRelogin)
			a.logAudit(ctx, audit.ActionAgentRelogin, audit.ResultFailure)
			a.recordEvent("relogin", audit.ResultFailure)
			return
		}
	}
}

func (a *Agent) renewWithRetries(ctx context.Context) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return autherrors.New(autherrors.KindAuth, "agent has no authenticated client to renew")
	}

	var lastErr error
	attempts := append([]time.Duration{0}, renewBackoff...)
	for i, wait := range attempts {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		newTTL, err := client.RenewSelf(ctx, 0)
		if err == nil {
			a.mu.Lock()
			a.sessionTTL = newTTL
			a.state = StateAuthenticated
			a.mu.Unlock()
			a.logAudit(ctx, audit.ActionAgentRenew, audit.ResultSuccess)
			a.recordEvent("renew", audit.ResultSuccess)
			return nil
		}
		lastErr = err
		a.log.WithError(err).WithField("attempt", i+1).Debug("renew attempt failed")
	}
	a.recordEvent("renew", audit.ResultFailure)
	return lastErr
}

// Stop cancels the background renewal task and clears the in-memory token.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.client = nil
	a.state = StateUnauthenticated
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
