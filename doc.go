/*
Package authcore is a shared authentication/authorization core: it issues,
verifies and revokes signed bearer credentials with multi-group membership,
backed by a pluggable storage abstraction (in-memory, local JSON file, or a
remote Vault-compatible KV v2 store). HTTP transport, CLI front-ends, and
orchestration tooling are external collaborators; this module only provides
the library surface they build on.

# Core components

  - pkg/model — Group, TokenRecord, TokenInfo, the shared data model.
  - pkg/autherrors — the closed error taxonomy every component returns.
  - pkg/storage — the TokenStore/GroupStore interfaces and the backend
    factory (storage.Open) that selects memstore, filestore or vaultstore
    from a storage.Config.
  - pkg/storage/memstore, pkg/storage/filestore, pkg/storage/vaultstore —
    the three storage backends.
  - pkg/storage/rediscache — an optional read-through Redis cache-aside
    decorator in front of any TokenStore.
  - pkg/vaultkv — a thin client over hashicorp/vault/api's KV v2 engine,
    with AppRole login and circuit-breaker-protected reads/writes.
  - pkg/group — the group registry: lifecycle, reserved groups, name↔id
    lookups.
  - pkg/token — the token service: JWT sign/verify (golang-jwt/v5), UUID
    generation (google/uuid), and TokenRecord CRUD.
  - pkg/auth — orchestrates the group registry and token service behind a
    single Service.
  - pkg/admin — bootstrap orchestration: Vault init/unseal, AppRole
    provisioning, reserved-group and bootstrap-token minting.
  - pkg/identity — the runtime identity agent: role-id/secret-id login, a
    background renewal loop, and a mutex-guarded authenticated client
    handle.
  - pkg/audit — a structured, hash-chained audit log of every
    security-relevant group/token/admin/agent operation, with memory,
    file and Redis storage backends.
  - pkg/obsmetrics — injectable Prometheus counters/histograms for token,
    group, storage and agent operations.
  - pkg/obstracing — an injectable OpenTelemetry tracer provider wrapping
    store and vault-client calls in spans.
  - pkg/appconfig — loads the ambient process configuration (logging,
    metrics, tracing, cache, audit backend) once at startup and builds
    the collaborators above.

# Getting started

	storageCfg, err := storage.Load("MYSVC")
	tokens, groups, err := storage.Open(storageCfg)

	groupRegistry, err := group.New(ctx, groups, group.Options{})
	tokenService, err := token.New(tokens, token.Options{Secret: []byte(secret)})

	authService := auth.New(groupRegistry, tokenService)

	signed, rec, err := authService.CreateToken(ctx, auth.CreateTokenParams{Name: "deploy-bot", Groups: []string{"public"}})

None of these collaborators reach for a package-level singleton: every
constructor takes its dependencies as explicit values, so a process can run
more than one Service concurrently against different backends.
*/
package authcore
