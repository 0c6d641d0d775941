package engine

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/openbaas/corestore/internal/acl"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/schema"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/value"
)

// WriteResult is the outcome of a create or update: the stored record plus
// the minimal response payload for the caller.
type WriteResult struct {
	Record       *object.Record
	SessionToken string
	Response     map[string]interface{}
}

var (
	classNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	fieldNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// reservedFields can never be written through the pipeline, not even with
// the master key. They are assigned by the engine.
var reservedFields = map[string]bool{
	"objectId":                       true,
	"createdAt":                      true,
	"updatedAt":                      true,
	"sessionToken":                   true,
	"_hashed_password":               true,
	"_email_verify_token":            true,
	"_email_verify_token_expires_at": true,
}

// masterOnlyUserFields require the master key to write.
var masterOnlyUserFields = map[string]bool{
	"emailVerified": true,
}

func validClassName(className string) bool {
	switch className {
	case UserClass, SessionClass:
		return true
	}
	return classNameRe.MatchString(className)
}

// validateFieldNames rejects reserved and malformed field names. This runs
// before any hook so a trigger never observes an illegal write.
func validateFieldNames(identity Identity, className string, fields value.Object) error {
	for key := range fields {
		top := key
		if i := strings.IndexByte(key, '.'); i >= 0 {
			top = key[:i]
		}
		if reservedFields[top] {
			return types.NewAPIErrorf(types.CodeInvalidFieldName, "%s is an invalid field name.", top)
		}
		if className == UserClass && masterOnlyUserFields[top] && !identity.Master {
			return types.NewAPIErrorf(types.CodeInvalidFieldName, "%s is an invalid field name.", top)
		}
		if !fieldNameRe.MatchString(top) {
			return types.NewAPIErrorf(types.CodeInvalidFieldName, "Invalid field name: %s.", top)
		}
	}
	return nil
}

// extractACL pulls the ACL key out of a decoded field map and parses it.
func extractACL(fields value.Object) (*acl.ACL, error) {
	raw, ok := fields["ACL"]
	if !ok {
		return nil, nil
	}
	delete(fields, "ACL")
	obj, isObj := raw.(value.Object)
	if !isObj {
		return nil, types.NewAPIError(types.CodeInvalidJSON, "ACL must be a JSON object")
	}
	encoded, _ := value.Encode(obj).(map[string]interface{})
	parsed, err := acl.FromJSON(encoded)
	if err != nil {
		return nil, types.NewAPIErrorf(types.CodeInvalidJSON, "invalid ACL: %v", err)
	}
	return parsed, nil
}

// classCreationAllowed decides whether this write may bring a class into
// existence.
func (e *Engine) classCreationAllowed(identity Identity, className string) bool {
	return identity.Master || e.cfg.AllowClientClassCreation || e.schema.Has(className)
}

func (e *Engine) checkClassExists(identity Identity, className string) error {
	if !e.schema.Has(className) && !e.classCreationAllowed(identity, className) {
		return types.NewAPIErrorf(types.CodeOperationForbidden,
			"This user is not allowed to access non-existent class: %s", className)
	}
	return nil
}

// dirtyTopKeys lists the top-level fields on which candidate differs from
// current, sorted. current may be nil for creates.
func dirtyTopKeys(current, candidate *object.Record) []string {
	keys := make(map[string]bool)
	for k := range candidate.Fields {
		keys[k] = true
	}
	if current != nil {
		for k := range current.Fields {
			keys[k] = true
		}
	}
	var dirty []string
	for k := range keys {
		var before, after value.Value
		if current != nil {
			before = current.Fields[k]
		}
		after = candidate.Fields[k]
		if before == nil && after == nil {
			continue
		}
		if before == nil || after == nil || !value.Equal(before, after) {
			dirty = append(dirty, k)
		}
	}
	sort.Strings(dirty)
	return dirty
}

// Create runs the full create pipeline for one object and returns the
// stored record plus the caller-facing response payload.
func (e *Engine) Create(ctx context.Context, identity Identity, className string, raw map[string]interface{}) (*WriteResult, error) {
	if !validClassName(className) {
		return nil, types.NewAPIErrorf(types.CodeInvalidClassName, "invalid class name: %s", className)
	}
	if className == SessionClass && !identity.Master {
		return nil, types.NewAPIError(types.CodeOperationForbidden, "Cannot create a session directly.")
	}

	fields, err := value.DecodeMap(raw)
	if err != nil {
		return nil, types.NewAPIErrorf(types.CodeInvalidJSON, "invalid JSON: %v", err)
	}
	explicitACL, err := extractACL(fields)
	if err != nil {
		return nil, err
	}
	if err := validateFieldNames(identity, className, fields); err != nil {
		return nil, err
	}

	// An authData block that resolves to a stored user is a login, not a
	// signup. The pipeline short-circuits with a fresh session.
	hasAuthData := false
	authProvider := ""
	if className == UserClass {
		if rawAuth, ok := fields["authData"].(value.Object); ok {
			provider, existing, err := e.resolveAuthData(ctx, rawAuth)
			if err != nil {
				return nil, err
			}
			hasAuthData = provider != ""
			authProvider = provider
			if existing != nil {
				token, err := e.createSession(ctx, existing, "login", provider)
				if err != nil {
					return nil, err
				}
				resp := e.encodeRecord(Identity{User: existing}, existing)
				resp["sessionToken"] = token
				return &WriteResult{Record: existing, SessionToken: token, Response: resp}, nil
			}
		}
	}

	if err := e.checkClassPermission(identity, className, schema.ActionCreate); err != nil {
		return nil, err
	}
	if err := e.checkClassExists(identity, className); err != nil {
		return nil, err
	}

	rec := object.New(className)
	for k, v := range fields {
		if _, isDelete := v.(value.Delete); isDelete {
			continue
		}
		rec.Set(k, value.Clone(v))
	}
	rec.ACL = explicitACL
	snapshot := rec.Clone()

	req := &TriggerRequest{
		Identity:  identity,
		Type:      BeforeSave,
		Object:    rec,
		DirtyKeys: dirtyTopKeys(nil, rec),
		unset:     make(map[string]struct{}),
	}
	if err := e.runBeforeTrigger(ctx, req); err != nil {
		return nil, err
	}

	if className == UserClass {
		if err := e.applyCreateUserTransforms(ctx, rec, hasAuthData); err != nil {
			return nil, err
		}
	}

	if err := e.schema.EnforceOrExtend(className, rec.Fields, true); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	rec.ObjectID = newObjectID()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.ACL == nil && className == UserClass {
		rec.ACL = defaultUserACL(rec.ObjectID)
	}

	if err := e.store.Create(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateID) {
			return nil, types.NewAPIError(types.CodeDuplicateValue,
				"A duplicate value for a field with unique values was provided")
		}
		return nil, err
	}

	result := &WriteResult{Record: rec}
	if className == UserClass {
		provider := authProvider
		if provider == "" {
			provider = "password"
		}
		token, err := e.createSession(ctx, rec, "signup", provider)
		if err != nil {
			return nil, err
		}
		result.SessionToken = token
	}

	e.runAfterTrigger(&TriggerRequest{
		Identity: identity,
		Type:     AfterSave,
		Object:   rec.Clone(),
	})

	result.Response = e.createResponse(rec, snapshot, result.SessionToken)
	return result, nil
}

// createResponse builds the signup/create payload: objectId and createdAt,
// plus whatever the pipeline changed beyond what the client sent.
func (e *Engine) createResponse(rec, snapshot *object.Record, sessionToken string) map[string]interface{} {
	resp := map[string]interface{}{
		"objectId":  rec.ObjectID,
		"createdAt": rec.CreatedAt.UTC().Format(value.ISO8601),
	}
	if sessionToken != "" {
		resp["sessionToken"] = sessionToken
	}
	for _, k := range dirtyTopKeys(snapshot, rec) {
		if e.responseHidden(rec.ClassName, k) {
			continue
		}
		if v, ok := rec.Fields[k]; ok {
			resp[k] = value.Encode(v)
		}
	}
	return resp
}

// responseHidden reports fields never echoed back in write responses.
func (e *Engine) responseHidden(className, field string) bool {
	if className != UserClass {
		return false
	}
	if field == "emailVerified" {
		return true
	}
	for _, hidden := range userHiddenFields {
		if field == hidden {
			return true
		}
	}
	return false
}

// Update runs the full update pipeline for one object.
func (e *Engine) Update(ctx context.Context, identity Identity, className, objectID string, raw map[string]interface{}) (*WriteResult, error) {
	if !validClassName(className) {
		return nil, types.NewAPIErrorf(types.CodeInvalidClassName, "invalid class name: %s", className)
	}
	fields, err := value.DecodeMap(raw)
	if err != nil {
		return nil, types.NewAPIErrorf(types.CodeInvalidJSON, "invalid JSON: %v", err)
	}
	newACL, err := extractACL(fields)
	if err != nil {
		return nil, err
	}
	if err := validateFieldNames(identity, className, fields); err != nil {
		return nil, err
	}
	if err := e.checkClassPermission(identity, className, schema.ActionUpdate); err != nil {
		return nil, err
	}

	current, err := e.store.Get(ctx, className, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
		}
		return nil, err
	}
	if err := e.checkObjectWritable(identity, current); err != nil {
		return nil, err
	}

	candidate := current.Clone()
	if newACL != nil {
		candidate.ACL = newACL
	}
	unset := make(map[string]struct{})
	for k, v := range fields {
		if _, isDelete := v.(value.Delete); isDelete {
			candidate.Unset(k)
			unset[k] = struct{}{}
			continue
		}
		candidate.Set(k, value.Clone(v))
	}

	if className == UserClass {
		if err := e.applyUserAuthDataUpdate(ctx, candidate, fields, unset); err != nil {
			return nil, err
		}
	}

	req := &TriggerRequest{
		Identity:  identity,
		Type:      BeforeSave,
		Object:    candidate,
		Original:  current,
		DirtyKeys: dirtyTopKeys(current, candidate),
		unset:     unset,
	}
	if err := e.runBeforeTrigger(ctx, req); err != nil {
		return nil, err
	}

	passwordChanged := false
	if className == UserClass {
		dirty := make(map[string]bool)
		for _, k := range dirtyTopKeys(current, candidate) {
			dirty[k] = true
		}
		passwordChanged = dirty["password"]
		if err := e.applyUpdateUserTransforms(ctx, candidate, dirty); err != nil {
			return nil, err
		}
	}

	if err := e.schema.EnforceOrExtend(className, candidate.Fields, e.classCreationAllowed(identity, className)); err != nil {
		return nil, err
	}

	change := storage.Change{
		Set:       make(value.Object),
		UpdatedAt: e.stampUpdate(current.UpdatedAt),
	}
	for k, v := range candidate.Fields {
		before, had := current.Fields[k]
		if !had || !value.Equal(before, v) {
			change.Set[k] = v
		}
	}
	for k := range unset {
		if !candidate.Has(k) {
			change.Unset = append(change.Unset, k)
		}
	}
	sort.Strings(change.Unset)
	if candidate.ACL != nil {
		change.ACL = candidate.ACL
	}

	updated, err := e.store.Update(ctx, className, objectID, change)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
		}
		return nil, err
	}

	if className == UserClass {
		if passwordChanged && e.cfg.RevokeSessionOnPasswordReset {
			e.destroyUserSessions(ctx, objectID)
		} else {
			e.invalidateUserSessions(objectID)
		}
	}

	e.runAfterTrigger(&TriggerRequest{
		Identity:  identity,
		Type:      AfterSave,
		Object:    updated.Clone(),
		Original:  current,
		DirtyKeys: dirtyTopKeys(current, updated),
	})

	resp := map[string]interface{}{
		"updatedAt": updated.UpdatedAt.UTC().Format(value.ISO8601),
	}
	for k, v := range change.Set {
		if !e.responseHidden(className, k) {
			resp[k] = value.Encode(v)
		}
	}
	return &WriteResult{Record: updated, Response: resp}, nil
}

// applyUserAuthDataUpdate handles authData on user updates. All-null
// provider blocks together with fresh credentials upgrade an anonymous user
// in place; otherwise the blocks are validated like a signup.
func (e *Engine) applyUserAuthDataUpdate(ctx context.Context, candidate *object.Record, fields value.Object, unset map[string]struct{}) error {
	rawAuth, ok := fields["authData"].(value.Object)
	if !ok {
		return nil
	}
	if onlyNullProviders(rawAuth) {
		if candidate.Has("username") && candidate.Has("password") {
			candidate.Unset("authData")
			unset["authData"] = struct{}{}
			return nil
		}
		return types.NewAPIError(types.CodeUsernameMissing,
			"Username and password are required to remove authentication.")
	}
	_, existing, err := e.resolveAuthData(ctx, rawAuth)
	if err != nil {
		return err
	}
	if existing != nil && existing.ObjectID != candidate.ObjectID {
		return types.NewAPIError(types.CodeDuplicateValue,
			"this auth is already used")
	}
	return nil
}

// Destroy runs the delete pipeline for one object.
func (e *Engine) Destroy(ctx context.Context, identity Identity, className, objectID string) error {
	if !validClassName(className) {
		return types.NewAPIErrorf(types.CodeInvalidClassName, "invalid class name: %s", className)
	}
	if err := e.checkClassPermission(identity, className, schema.ActionDelete); err != nil {
		return err
	}

	current, err := e.store.Get(ctx, className, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
		}
		return err
	}
	if err := e.checkObjectWritable(identity, current); err != nil {
		return err
	}

	req := &TriggerRequest{
		Identity: identity,
		Type:     BeforeDelete,
		Object:   current.Clone(),
	}
	if err := e.runBeforeTrigger(ctx, req); err != nil {
		return err
	}

	if err := e.store.Delete(ctx, className, objectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
		}
		return err
	}

	if className == UserClass {
		e.destroyUserSessions(ctx, objectID)
	}

	e.runAfterTrigger(&TriggerRequest{
		Identity: identity,
		Type:     AfterDelete,
		Object:   current.Clone(),
	})
	return nil
}
