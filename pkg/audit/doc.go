// Package audit provides a hash-chained audit trail for the token and
// group lifecycle: every create, verify, revoke, defunct and bootstrap
// step gets a structured Entry with a prev_hash link to the one before
// it, so tampering with history breaks the chain.
//
// # Quick Start
//
//	storage, err := audit.NewFileStorage(audit.FileConfig{Directory: dir})
//	if err != nil {
//		return err
//	}
//	logger := audit.NewLogger(audit.Config{Storage: storage})
//	entry := audit.NewEntry(audit.TypeToken).
//		WithActor(serviceName, audit.ActorService).
//		WithAction(audit.ActionTokenCreate).
//		WithTarget(record.ID, "token").
//		WithResult(audit.ResultSuccess)
//	logger.Log(ctx, entry)
//
// # Storage backends
//
// Storage is pluggable: MemoryStorage for tests and ephemeral processes,
// FileStorage for local append-only logs, RedisStorage for centrally
// queryable deployments.
package audit
