package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/value"
)

// TriggerType names the lifecycle points a class trigger can attach to.
type TriggerType string

const (
	BeforeSave   TriggerType = "beforeSave"
	AfterSave    TriggerType = "afterSave"
	BeforeDelete TriggerType = "beforeDelete"
	AfterDelete  TriggerType = "afterDelete"
)

// TriggerRequest is passed to class triggers. Before-save triggers may
// mutate the pending object through Set and Unset; the write pipeline
// persists exactly what the trigger leaves behind.
type TriggerRequest struct {
	Engine   *Engine
	Identity Identity
	Type     TriggerType

	// Object is the pending state for save triggers and the doomed record
	// for delete triggers.
	Object *object.Record

	// Original is the stored state before an update, nil on create.
	Original *object.Record

	// DirtyKeys lists the top-level fields this write changes.
	DirtyKeys []string

	unset map[string]struct{}
}

// Get reads a field from the pending object.
func (r *TriggerRequest) Get(field string) (value.Value, bool) {
	return r.Object.Get(field)
}

// Set overrides a field on the pending object. Setting a field the client
// asked to unset cancels the unset.
func (r *TriggerRequest) Set(field string, v value.Value) {
	r.Object.Set(field, v)
	if r.unset != nil {
		delete(r.unset, field)
	}
}

// Unset removes a field from the pending object. The removal is honored
// alongside any removals the client requested.
func (r *TriggerRequest) Unset(field string) {
	r.Object.Unset(field)
	if r.unset != nil {
		r.unset[field] = struct{}{}
	}
}

// TriggerFunc is a class trigger. An error from a before trigger aborts the
// write; errors from after triggers are logged and otherwise ignored.
type TriggerFunc func(ctx context.Context, req *TriggerRequest) error

// FunctionRequest is passed to named functions and their validators.
type FunctionRequest struct {
	Engine   *Engine
	Identity Identity
	Params   value.Object
}

// FunctionFunc is a named invocable function.
type FunctionFunc func(ctx context.Context, req *FunctionRequest) (value.Value, error)

// ValidatorFunc guards a named function. Returning false rejects the call
// before the function runs.
type ValidatorFunc func(req *FunctionRequest) bool

type functionEntry struct {
	fn        FunctionFunc
	validator ValidatorFunc
}

// hookRegistry holds triggers and functions. One slot per class and
// trigger type; re-registering replaces.
type hookRegistry struct {
	mu        sync.RWMutex
	triggers  map[string]TriggerFunc
	functions map[string]functionEntry
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{
		triggers:  make(map[string]TriggerFunc),
		functions: make(map[string]functionEntry),
	}
}

func triggerKey(className string, typ TriggerType) string {
	return className + ":" + string(typ)
}

// RegisterTrigger installs fn as the trigger for className at the given
// lifecycle point, replacing any previous one.
func (e *Engine) RegisterTrigger(className string, typ TriggerType, fn TriggerFunc) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.triggers[triggerKey(className, typ)] = fn
}

// UnregisterTrigger removes the trigger for className at the given point.
func (e *Engine) UnregisterTrigger(className string, typ TriggerType) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	delete(e.hooks.triggers, triggerKey(className, typ))
}

func (e *Engine) trigger(className string, typ TriggerType) (TriggerFunc, bool) {
	e.hooks.mu.RLock()
	defer e.hooks.mu.RUnlock()
	fn, ok := e.hooks.triggers[triggerKey(className, typ)]
	return fn, ok
}

// runBeforeTrigger invokes the before trigger, if any, and normalizes its
// failure into an API error the caller can surface.
func (e *Engine) runBeforeTrigger(ctx context.Context, req *TriggerRequest) error {
	fn, ok := e.trigger(req.Object.ClassName, req.Type)
	if !ok {
		return nil
	}
	req.Engine = e
	if err := fn(ctx, req); err != nil {
		return scriptError(err)
	}
	return nil
}

// runAfterTrigger invokes the after trigger detached from the request. The
// write has already been acknowledged; failures are logged only.
func (e *Engine) runAfterTrigger(req *TriggerRequest) {
	fn, ok := e.trigger(req.Object.ClassName, req.Type)
	if !ok {
		return
	}
	req.Engine = e
	e.after.run(func(ctx context.Context) {
		if err := fn(ctx, req); err != nil {
			e.log.Error(ctx, "after trigger failed",
				"class", req.Object.ClassName,
				"trigger", string(req.Type),
				"objectId", req.Object.ObjectID,
				"error", err)
		}
	})
}

// scriptError maps a hook failure onto the wire error contract. Hooks that
// return an APIError keep their code and message; anything else becomes a
// script failure.
func scriptError(err error) error {
	var apiErr *types.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	msg := err.Error()
	if msg == "" {
		msg = "Script failed."
	}
	return types.NewAPIError(types.CodeScriptFailed, msg)
}

// Define registers a named function, optionally guarded by a validator.
// Re-defining a name replaces the previous function.
func (e *Engine) Define(name string, fn FunctionFunc, validator ...ValidatorFunc) {
	entry := functionEntry{fn: fn}
	if len(validator) > 0 {
		entry.validator = validator[0]
	}
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.functions[name] = entry
}

// RunFunction invokes a named function with JSON params and returns its
// JSON-encoded result.
func (e *Engine) RunFunction(ctx context.Context, identity Identity, name string, params map[string]interface{}) (interface{}, error) {
	e.hooks.mu.RLock()
	entry, ok := e.hooks.functions[name]
	e.hooks.mu.RUnlock()
	if !ok {
		return nil, types.NewAPIErrorf(types.CodeScriptFailed, "Invalid function: \"%s\"", name)
	}

	decoded, err := value.DecodeMap(params)
	if err != nil {
		return nil, types.NewAPIErrorf(types.CodeInvalidJSON, "invalid function params: %v", err)
	}
	req := &FunctionRequest{Engine: e, Identity: identity, Params: decoded}

	if entry.validator != nil && !entry.validator(req) {
		return nil, types.NewAPIError(types.CodeValidationFailed, "Validation failed.")
	}

	result, err := entry.fn(ctx, req)
	if err != nil {
		return nil, scriptError(err)
	}
	if result == nil {
		return nil, nil
	}
	return value.Encode(result), nil
}
