package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/value"
)

// sessionCache maps session tokens to resolved user records so repeated
// requests skip the _Session lookup. Any write to a user evicts every
// cached token of that user, which gives read-your-writes across that
// user's sessions.
type sessionCache struct {
	mu      sync.RWMutex
	byToken map[string]cachedSession
	byUser  map[string]map[string]struct{}
}

// cachedSession pairs the resolved user with the session expiry so cache
// hits still honor expiration. A zero expiry never expires.
type cachedSession struct {
	user      *object.Record
	expiresAt time.Time
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		byToken: make(map[string]cachedSession),
		byUser:  make(map[string]map[string]struct{}),
	}
}

func (c *sessionCache) get(token string, now time.Time) (*object.Record, bool) {
	c.mu.RLock()
	entry, ok := c.byToken[token]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
		c.evictToken(token)
		return nil, false
	}
	return entry.user.Clone(), true
}

func (c *sessionCache) put(token string, user *object.Record, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byToken[token] = cachedSession{user: user.Clone(), expiresAt: expiresAt}
	tokens, ok := c.byUser[user.ObjectID]
	if !ok {
		tokens = make(map[string]struct{})
		c.byUser[user.ObjectID] = tokens
	}
	tokens[token] = struct{}{}
}

func (c *sessionCache) evictToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byToken[token]
	if !ok {
		return
	}
	delete(c.byToken, token)
	if tokens, ok := c.byUser[entry.user.ObjectID]; ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(c.byUser, entry.user.ObjectID)
		}
	}
}

// evictUser drops every cached token belonging to userID.
func (c *sessionCache) evictUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for token := range c.byUser[userID] {
		delete(c.byToken, token)
	}
	delete(c.byUser, userID)
}

// invalidateUserSessions is called after any committed write to a user.
func (e *Engine) invalidateUserSessions(userID string) {
	e.sessions.evictUser(userID)
}

var errInvalidSession = types.NewAPIError(types.CodeInvalidSessionToken, "Invalid session token")

// Authenticate resolves a session token to an identity. An empty token
// resolves to the public identity; an unknown or expired token is an error.
func (e *Engine) Authenticate(ctx context.Context, sessionToken string) (Identity, error) {
	if sessionToken == "" {
		return Nobody(), nil
	}
	if user, ok := e.sessions.get(sessionToken, e.now().UTC()); ok {
		return Identity{User: user, SessionToken: sessionToken}, nil
	}

	sessions, err := e.store.Find(ctx, SessionClass,
		storage.Compare{Field: "sessionToken", Op: storage.OpEqual, Value: value.String(sessionToken)},
		storage.UnlimitedFind())
	if err != nil {
		return Identity{}, err
	}
	if len(sessions) == 0 {
		return Identity{}, errInvalidSession
	}
	session := sessions[0]

	var expiresAt time.Time
	if exp, ok := session.Get("expiresAt"); ok {
		if d, ok := exp.(value.Date); ok {
			expiresAt = d.Time()
			if !e.now().UTC().Before(expiresAt) {
				return Identity{}, errInvalidSession
			}
		}
	}

	ptr, ok := session.Get("user")
	userPtr, isPtr := ptr.(value.Pointer)
	if !ok || !isPtr {
		return Identity{}, errInvalidSession
	}
	user, err := e.store.Get(ctx, UserClass, userPtr.ObjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, errInvalidSession
		}
		return Identity{}, err
	}

	e.sessions.put(sessionToken, user, expiresAt)
	return Identity{User: user, SessionToken: sessionToken}, nil
}

// createSession writes a _Session record for a user and returns its token.
// action records how the session came to be ("signup", "login").
func (e *Engine) createSession(ctx context.Context, user *object.Record, action, provider string) (string, error) {
	token := newSessionToken()
	now := e.now().UTC()

	createdWith := value.Object{"action": value.String(action)}
	if provider != "" {
		createdWith["authProvider"] = value.String(provider)
	}
	session := object.New(SessionClass)
	session.ObjectID = newObjectID()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Fields = value.Object{
		"sessionToken": value.String(token),
		"user":         value.Pointer{ClassName: UserClass, ObjectID: user.ObjectID},
		"createdWith":  createdWith,
	}
	if e.cfg.ExpireInactiveSessions {
		session.Fields["expiresAt"] = value.Date(now.Add(e.sessionLength()))
	}
	session.ACL = ownerOnlyACL(user.ObjectID)

	if err := e.store.Create(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

func (e *Engine) sessionLength() time.Duration {
	if e.cfg.SessionLength > 0 {
		return e.cfg.SessionLength
	}
	return 365 * 24 * time.Hour
}

// Login verifies credentials and issues a fresh session. Bad username and
// bad password are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, username, password string) (map[string]interface{}, error) {
	invalid := types.NewAPIError(types.CodeObjectNotFound, "Invalid username/password.")

	users, err := e.store.Find(ctx, UserClass,
		storage.Compare{Field: "username", Op: storage.OpEqual, Value: value.String(username)},
		storage.UnlimitedFind())
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, invalid
	}
	user := users[0]

	hashed, ok := user.Get("_hashed_password")
	hashedStr, isStr := hashed.(value.String)
	if !ok || !isStr || !checkPassword(string(hashedStr), password) {
		return nil, invalid
	}

	token, err := e.createSession(ctx, user, "login", "password")
	if err != nil {
		return nil, err
	}

	out := e.encodeRecord(Identity{User: user}, user)
	out["sessionToken"] = token
	return out, nil
}

// Logout destroys the session behind the token and evicts it from the
// cache. Unknown tokens fail with the invalid-session error.
func (e *Engine) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return errInvalidSession
	}
	sessions, err := e.store.Find(ctx, SessionClass,
		storage.Compare{Field: "sessionToken", Op: storage.OpEqual, Value: value.String(sessionToken)},
		storage.UnlimitedFind())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return errInvalidSession
	}
	for _, session := range sessions {
		if err := e.store.Delete(ctx, SessionClass, session.ObjectID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	e.sessions.evictToken(sessionToken)
	return nil
}

// destroyUserSessions removes every session record of a user. Used when the
// user is deleted.
func (e *Engine) destroyUserSessions(ctx context.Context, userID string) {
	sessions, err := e.store.Find(ctx, SessionClass,
		storage.Compare{Field: "user", Op: storage.OpEqual,
			Value: value.Pointer{ClassName: UserClass, ObjectID: userID}},
		storage.UnlimitedFind())
	if err != nil {
		e.log.Warn(ctx, "session cleanup query failed", "userId", userID, "error", err)
		return
	}
	for _, session := range sessions {
		if err := e.store.Delete(ctx, SessionClass, session.ObjectID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.log.Warn(ctx, "session cleanup delete failed", "userId", userID, "error", err)
		}
	}
	e.sessions.evictUser(userID)
}

// newSessionToken mints an opaque session token.
func newSessionToken() string {
	return "r:" + randomHex(16)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
