package engine

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"
	"github.com/openbaas/corestore/internal/acl"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/value"
)

// AuthProvider validates third-party authData blocks. The id returned must
// be stable for a given external account; it keys repeated logins to the
// same user.
type AuthProvider interface {
	Name() string
	// Validate checks the provider block from authData and returns the
	// stable external id.
	Validate(ctx context.Context, data value.Object) (string, error)
}

// anonymousProvider implements the built-in anonymous auth flow. The
// client-minted id is the credential.
type anonymousProvider struct{}

func (anonymousProvider) Name() string { return "anonymous" }

func (anonymousProvider) Validate(_ context.Context, data value.Object) (string, error) {
	id, ok := data["id"].(value.String)
	if !ok || id == "" {
		return "", types.NewAPIError(types.CodeInvalidJSON, "anonymous auth requires an id")
	}
	return string(id), nil
}

type authProviders struct {
	mu        sync.RWMutex
	providers map[string]AuthProvider
}

func newAuthProviders(anonymousEnabled bool) *authProviders {
	p := &authProviders{providers: make(map[string]AuthProvider)}
	if anonymousEnabled {
		p.providers["anonymous"] = anonymousProvider{}
	}
	return p
}

func (p *authProviders) get(name string) (AuthProvider, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	provider, ok := p.providers[name]
	return provider, ok
}

// RegisterAuthProvider installs a custom auth provider.
func (e *Engine) RegisterAuthProvider(provider AuthProvider) {
	e.auth.mu.Lock()
	defer e.auth.mu.Unlock()
	e.auth.providers[provider.Name()] = provider
}

var errUnsupportedService = types.NewAPIError(types.CodeUnsupportedService,
	"This authentication method is unsupported.")

// resolveAuthData validates every provider block in authData and returns
// the first provider name plus a matching stored user, if one exists.
// Null provider blocks are skipped; they mean unlinking.
func (e *Engine) resolveAuthData(ctx context.Context, authData value.Object) (provider string, existing *object.Record, err error) {
	for name, raw := range authData {
		if _, isNull := raw.(value.Null); isNull {
			continue
		}
		block, ok := raw.(value.Object)
		if !ok {
			return "", nil, types.NewAPIErrorf(types.CodeInvalidJSON, "invalid auth data for %s", name)
		}
		p, ok := e.auth.get(name)
		if !ok {
			return "", nil, errUnsupportedService
		}
		id, err := p.Validate(ctx, block)
		if err != nil {
			return "", nil, err
		}

		users, err := e.store.Find(ctx, UserClass,
			storage.Compare{Field: "authData." + name + ".id", Op: storage.OpEqual, Value: value.String(id)},
			storage.UnlimitedFind())
		if err != nil {
			return "", nil, err
		}
		if provider == "" {
			provider = name
		}
		if len(users) > 0 && existing == nil {
			existing = users[0]
		}
	}
	return provider, existing, nil
}

// onlyNullProviders reports whether authData contains provider keys and all
// of them are null. That shape is the unlink request used when upgrading an
// anonymous user.
func onlyNullProviders(authData value.Object) bool {
	if len(authData) == 0 {
		return false
	}
	for _, raw := range authData {
		if _, isNull := raw.(value.Null); !isNull {
			return false
		}
	}
	return true
}

// defaultUserACL is applied when a new user carries no explicit ACL:
// readable by anyone, writable only by the user.
func defaultUserACL(userID string) *acl.ACL {
	a := acl.New()
	a.SetPublicRead(true)
	a.SetReadAccess(userID, true)
	a.SetWriteAccess(userID, true)
	return a
}

// ownerOnlyACL restricts both read and write to one user.
func ownerOnlyACL(userID string) *acl.ACL {
	a := acl.New()
	a.SetReadAccess(userID, true)
	a.SetWriteAccess(userID, true)
	return a
}

// newObjectID mints a record id: 10 characters of uuid-derived entropy,
// matching the shape clients expect.
func newObjectID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:10]
}

func hashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func checkPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// generateUsername mints a username for authData-only signups.
func generateUsername() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:25]
}

// applyCreateUserTransforms runs the user-specific side effects of a signup
// after the before-save hook: credential validation, password hashing,
// uniqueness checks and the email verification token.
func (e *Engine) applyCreateUserTransforms(ctx context.Context, rec *object.Record, hasAuthData bool) error {
	username, hasUsername := rec.Get("username")
	if !hasUsername || username == (value.String("")) {
		if !hasAuthData {
			return types.NewAPIError(types.CodeUsernameMissing, "bad or missing username")
		}
		rec.Set("username", value.String(generateUsername()))
	}

	password, hasPassword := rec.Get("password")
	if hasPassword {
		plain, ok := password.(value.String)
		if !ok {
			return types.NewAPIError(types.CodePasswordMissing, "password is required")
		}
		hashed, err := hashPassword(string(plain))
		if err != nil {
			return err
		}
		rec.Unset("password")
		rec.Set("_hashed_password", value.String(hashed))
	} else if !hasAuthData {
		return types.NewAPIError(types.CodePasswordMissing, "password is required")
	}

	if err := e.checkUserUniqueness(ctx, rec, ""); err != nil {
		return err
	}

	if _, hasEmail := rec.Get("email"); hasEmail && e.cfg.VerifyUserEmails {
		e.setEmailVerifyToken(rec)
	}
	return nil
}

// applyUpdateUserTransforms runs the user-specific side effects of an
// update after the before-save hook. dirty reports which top-level fields
// this write changes.
func (e *Engine) applyUpdateUserTransforms(ctx context.Context, rec *object.Record, dirty map[string]bool) error {
	if dirty["password"] {
		if plain, ok := rec.Get("password"); ok {
			str, isStr := plain.(value.String)
			if !isStr {
				return types.NewAPIError(types.CodePasswordMissing, "password is required")
			}
			hashed, err := hashPassword(string(str))
			if err != nil {
				return err
			}
			rec.Unset("password")
			rec.Set("_hashed_password", value.String(hashed))
		}
	}

	if dirty["username"] || dirty["email"] {
		if err := e.checkUserUniqueness(ctx, rec, rec.ObjectID); err != nil {
			return err
		}
	}

	// Changing the email restarts verification with a fresh token.
	if dirty["email"] && e.cfg.VerifyUserEmails {
		if _, hasEmail := rec.Get("email"); hasEmail {
			e.setEmailVerifyToken(rec)
		}
	}
	return nil
}

// checkUserUniqueness rejects a username or email already held by another
// user. excludeID skips the record being updated.
func (e *Engine) checkUserUniqueness(ctx context.Context, rec *object.Record, excludeID string) error {
	if username, ok := rec.Get("username"); ok {
		taken, err := e.userFieldTaken(ctx, "username", username, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return types.NewAPIError(types.CodeUsernameTaken, "Account already exists for this username.")
		}
	}
	if email, ok := rec.Get("email"); ok {
		taken, err := e.userFieldTaken(ctx, "email", email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return types.NewAPIError(types.CodeEmailTaken, "Account already exists for this email address.")
		}
	}
	return nil
}

func (e *Engine) userFieldTaken(ctx context.Context, field string, v value.Value, excludeID string) (bool, error) {
	users, err := e.store.Find(ctx, UserClass,
		storage.Compare{Field: field, Op: storage.OpEqual, Value: v},
		storage.UnlimitedFind())
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.ObjectID != excludeID {
			return true, nil
		}
	}
	return false, nil
}
