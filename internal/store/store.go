// Package store provides the widget's durable key-value persistence in two
// lifetimes: a long-lived scope that survives restarts (thread id, persona
// choice) and a session scope that lives for one process (the cached access
// grant). Pure data access; no business logic.
package store

// Long-lived keys. Values are strings; booleans are stored as "true".
const (
	KeyThreadID         = "qc_thread_id"
	KeyPersonaChoice    = "qc_persona_choice"
	KeyPersonaConfirmed = "qc_persona_confirmed"
	KeyReturnToChat     = "qc_return_to_chat"
)

// KV is a scope of key-value storage. Writes are best-effort UX persistence,
// not correctness-critical: implementations swallow storage errors and log
// them at debug level rather than failing the caller.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string)
	// SetMany writes all pairs as one unit so readers never observe a torn
	// intermediate state across coupled fields.
	SetMany(pairs map[string]string)
	Delete(key string)
}

// Pair bundles both lifetimes for components that need them together.
type Pair struct {
	Long    KV // survives restarts
	Session KV // lives for the current process
}
