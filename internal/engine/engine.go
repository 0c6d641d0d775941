// Package engine implements the object mutation and query engine: schema
// enforcement, authorization, the write pipeline with its hook contract,
// query execution, and the session/identity layer.
package engine

import (
	"time"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/logging"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/schema"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/types"
)

// System class names.
const (
	UserClass    = "_User"
	SessionClass = "_Session"
)

// Engine ties the schema registry, storage adapter, hook registry and
// session cache into one instance. Multiple independent engines can coexist
// in a process; nothing here is package-global.
type Engine struct {
	cfg      *config.Config
	schema   *schema.Registry
	store    storage.Adapter
	hooks    *hookRegistry
	sessions *sessionCache
	auth     *authProviders
	log      logging.Logger
	now      func() time.Time
	after    *afterRunner
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces the engine clock. Tests use this to drive token and
// session expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an engine over the given storage adapter.
func New(cfg *config.Config, store storage.Adapter, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		schema:   schema.NewRegistry(),
		store:    store,
		hooks:    newHookRegistry(),
		sessions: newSessionCache(),
		auth:     newAuthProviders(cfg.EnableAnonymousUsers),
		log:      logging.NewDefault(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.after = newAfterRunner(e.log)
	return e
}

// Schema exposes the engine's schema registry.
func (e *Engine) Schema() *schema.Registry { return e.schema }

// Close waits for in-flight after-hooks to finish.
func (e *Engine) Close() {
	e.after.wait()
}

// Identity is the acting caller of an operation: anonymous/public (zero
// value), an authenticated user, or master.
type Identity struct {
	Master       bool
	User         *object.Record
	SessionToken string
}

// MasterIdentity returns the privileged identity that bypasses schema and
// ACL checks.
func MasterIdentity() Identity { return Identity{Master: true} }

// Nobody returns the unauthenticated public identity.
func Nobody() Identity { return Identity{} }

// Authenticated reports whether the identity carries a resolved user or is
// master.
func (id Identity) Authenticated() bool { return id.Master || id.User != nil }

// UserID returns the acting user's object id, or "".
func (id Identity) UserID() string {
	if id.User == nil {
		return ""
	}
	return id.User.ObjectID
}

// principals lists the ACL entry keys this identity may match.
func (id Identity) principals() []string {
	if id.User == nil {
		return nil
	}
	return []string{id.User.ObjectID}
}

// checkClassPermission evaluates the class-level permission for an action.
// Master always passes; denial short-circuits with OPERATION_FORBIDDEN.
func (e *Engine) checkClassPermission(identity Identity, className string, action schema.Action) error {
	if identity.Master {
		return nil
	}
	perms := e.schema.Permissions(className)
	if !perms.Admits(action, identity.Authenticated()) {
		return types.NewAPIErrorf(types.CodeOperationForbidden,
			"Permission denied for action %s on class %s.", action, className)
	}
	return nil
}

// filterByACL drops records the identity may not read. Unreadable records
// are silently omitted, never errored.
func (e *Engine) filterByACL(identity Identity, recs []*object.Record) []*object.Record {
	if identity.Master {
		return recs
	}
	principals := identity.principals()
	visible := recs[:0]
	for _, rec := range recs {
		if rec.ACL.CanRead(principals...) {
			visible = append(visible, rec)
		}
	}
	return visible
}

// checkObjectWritable verifies the identity may mutate the record. The
// failure is reported as object-not-found so callers cannot probe for
// records they cannot touch.
func (e *Engine) checkObjectWritable(identity Identity, rec *object.Record) error {
	if identity.Master {
		return nil
	}
	if !rec.ACL.CanWrite(identity.principals()...) {
		return types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
	}
	return nil
}

// userHiddenFields are stripped from any user record returned to a caller,
// master included. They exist only inside the engine and its storage.
var userHiddenFields = []string{
	"password",
	"_hashed_password",
	"sessionToken",
	"_email_verify_token",
	"_email_verify_token_expires_at",
}

// encodeRecord renders a record for a caller, applying field redaction.
func (e *Engine) encodeRecord(identity Identity, rec *object.Record) map[string]interface{} {
	out := rec.ToJSON()
	if rec.ClassName == UserClass {
		for _, f := range userHiddenFields {
			delete(out, f)
		}
		if !identity.Master && identity.UserID() != rec.ObjectID {
			delete(out, "authData")
		}
	}
	return out
}

// stampUpdate returns the server-assigned updatedAt for a mutation,
// monotonic per record.
func (e *Engine) stampUpdate(prev time.Time) time.Time {
	now := e.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}
