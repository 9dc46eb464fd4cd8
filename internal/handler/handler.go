// Package handler provides cached access to the SWAMP resource collections.
//
// A Handler is bound to one entity kind and one authenticated client. List
// results are cached per scope (a project, a package, a platform, or the
// unscoped collection) and the number of cached scopes is bounded by an LRU.
// Every successful mutation purges the whole cache, since the service gives
// no way to tell which scopes a change touches.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/codec"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// DefaultMaxScopes bounds the number of cached scopes per handler.
const DefaultMaxScopes = 64

// DeleteResult is the outcome of Delete.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	NotFound
	Failed
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "Deleted"
	case NotFound:
		return "NotFound"
	default:
		return "Failed"
	}
}

// Config describes one resource collection.
type Config[T api.Entity] struct {
	// Kind names the resource in errors, e.g. "Tool".
	Kind string

	// Base is the collection endpoint used for create.
	Base string

	// CreateURL overrides Base for creates when set.
	CreateURL string

	// ListURL returns the list endpoint of a scope. Scope "" is the
	// unscoped collection.
	ListURL func(scope string) string

	// ItemURL returns the endpoint of one item. Defaults to Base/{id}.
	ItemURL func(id string) string

	Schema api.Schema
	Wrap   func(api.Fields) T

	// Prepare rewrites a raw JSON object before it is decoded.
	Prepare func(map[string]any) map[string]any

	// MaxScopes bounds the scope cache (default: DefaultMaxScopes).
	MaxScopes int

	Logger *slog.Logger
}

// scopeEntry holds the decoded fields of one scope's list. Entities are
// built from it on every read, so callers never share cached state.
type scopeEntry struct {
	items []api.Fields
	index map[string]int
}

// Handler reads and mutates one resource collection.
type Handler[T api.Entity] struct {
	cfg    Config[T]
	client *transport.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *scopeEntry]
}

// New creates a Handler over client.
func New[T api.Entity](client *transport.Client, cfg Config[T]) *Handler[T] {
	if cfg.MaxScopes <= 0 {
		cfg.MaxScopes = DefaultMaxScopes
	}
	if cfg.ItemURL == nil {
		base := cfg.Base
		cfg.ItemURL = func(id string) string { return base + "/" + id }
	}
	if cfg.CreateURL == "" {
		cfg.CreateURL = cfg.Base
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, *scopeEntry](cfg.MaxScopes)
	return &Handler[T]{
		cfg:    cfg,
		client: client,
		logger: logger(cfg.Logger).With("kind", cfg.Kind),
		cache:  cache,
	}
}

// Kind returns the resource name used in errors.
func (h *Handler[T]) Kind() string { return h.cfg.Kind }

// Client returns the transport the handler talks through.
func (h *Handler[T]) Client() *transport.Client { return h.client }

// List returns the collection of scope in server order. The first call per
// scope fetches it; later calls are served from the cache until a mutation
// or Invalidate. Each call returns new entities.
func (h *Handler[T]) List(ctx context.Context, scope string) ([]T, error) {
	e, err := h.entry(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(e.items))
	for i, f := range e.items {
		out[i] = h.cfg.Wrap(f)
	}
	return out, nil
}

// Find returns the member of scope's list with identifier id.
func (h *Handler[T]) Find(ctx context.Context, scope, id string) (T, error) {
	var zero T
	e, err := h.entry(ctx, scope)
	if err != nil {
		return zero, err
	}
	i, ok := e.index[id]
	if !ok {
		return zero, &errdefs.InvalidIdentifierError{Kind: h.cfg.Kind, ID: id}
	}
	return h.cfg.Wrap(e.items[i]), nil
}

func (h *Handler[T]) entry(ctx context.Context, scope string) (*scopeEntry, error) {
	if e, ok := h.cached(scope); ok {
		return e, nil
	}
	if h.cfg.ListURL == nil {
		return nil, fmt.Errorf("%s: listing is not supported", h.cfg.Kind)
	}

	endpoint := h.cfg.ListURL(scope)
	resp, err := h.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", h.cfg.Kind, err)
	}
	if resp.Array == nil {
		return nil, &errdefs.NoJSONError{URL: h.client.URL(endpoint), Body: string(resp.Body)}
	}

	e := &scopeEntry{index: make(map[string]int, len(resp.Array))}
	for _, item := range resp.Array {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := h.fields(raw)
		if id := h.cfg.Wrap(f).ID(); id != "" {
			e.index[id] = len(e.items)
		}
		e.items = append(e.items, f)
	}

	h.mu.Lock()
	h.cache.Add(scope, e)
	h.mu.Unlock()
	h.logger.Debug("fetched list", "scope", scope, "count", len(e.items))
	return e, nil
}

// Get fetches one item by identifier. It is never cached.
func (h *Handler[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, &errdefs.InvalidIdentifierError{Kind: h.cfg.Kind, ID: id}
	}
	resp, err := h.client.Get(ctx, h.cfg.ItemURL(id), nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return zero, &errdefs.InvalidIdentifierError{Kind: h.cfg.Kind, ID: id}
		}
		return zero, fmt.Errorf("get %s %s: %w", h.cfg.Kind, id, err)
	}
	if len(resp.Object) == 0 {
		return zero, &errdefs.InvalidIdentifierError{Kind: h.cfg.Kind, ID: id}
	}
	return h.decode(resp.Object), nil
}

// Create POSTs fields as a form and returns the created item.
func (h *Handler[T]) Create(ctx context.Context, fields api.Fields) (T, error) {
	var zero T
	form, err := codec.EncodeForm(fields)
	if err != nil {
		return zero, err
	}
	resp, err := h.client.PostForm(ctx, h.cfg.CreateURL, form)
	if err != nil {
		return zero, fmt.Errorf("create %s: %w", h.cfg.Kind, err)
	}
	return h.created(resp)
}

// CreateJSON POSTs fields as a JSON object and returns the created item.
func (h *Handler[T]) CreateJSON(ctx context.Context, fields api.Fields) (T, error) {
	var zero T
	body, err := codec.Encode(fields)
	if err != nil {
		return zero, err
	}
	resp, err := h.client.PostJSON(ctx, h.cfg.CreateURL, body)
	if err != nil {
		return zero, fmt.Errorf("create %s: %w", h.cfg.Kind, err)
	}
	return h.created(resp)
}

func (h *Handler[T]) created(resp *transport.Response) (T, error) {
	var zero T
	if resp.Object == nil {
		return zero, &errdefs.NoJSONError{URL: h.client.URL(h.cfg.CreateURL), Body: string(resp.Body)}
	}
	h.InvalidateAll()
	v := h.decode(resp.Object)
	h.logger.Debug("created", "id", v.ID())
	return v, nil
}

// Update PUTs the entity's fields and clears its changed flag.
func (h *Handler[T]) Update(ctx context.Context, v T) error {
	if v.ID() == "" {
		return &errdefs.InvalidIdentifierError{Kind: h.cfg.Kind}
	}
	body, err := codec.Encode(v.Fields())
	if err != nil {
		return err
	}
	if _, err := h.client.PutJSON(ctx, h.cfg.ItemURL(v.ID()), body); err != nil {
		return fmt.Errorf("update %s %s: %w", h.cfg.Kind, v.ID(), err)
	}
	v.ClearChanged()
	h.InvalidateAll()
	return nil
}

// Delete removes one item. A 404 is reported as NotFound with a nil error;
// any other failure is Failed with the error.
func (h *Handler[T]) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if _, err := h.client.Delete(ctx, h.cfg.ItemURL(id)); err != nil {
		if errdefs.IsNotFound(err) {
			return NotFound, nil
		}
		var noJSON *errdefs.NoJSONError
		if !errors.As(err, &noJSON) {
			return Failed, fmt.Errorf("delete %s %s: %w", h.cfg.Kind, id, err)
		}
	}
	h.InvalidateAll()
	h.logger.Debug("deleted", "id", id)
	return Deleted, nil
}

// Invalidate drops the cached list of scope.
func (h *Handler[T]) Invalidate(scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Remove(scope)
}

// InvalidateAll drops every cached list.
func (h *Handler[T]) InvalidateAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Purge()
}

func (h *Handler[T]) cached(scope string) (*scopeEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache.Get(scope)
}

func (h *Handler[T]) decode(raw map[string]any) T {
	return h.cfg.Wrap(h.fields(raw))
}

func (h *Handler[T]) fields(raw map[string]any) api.Fields {
	if h.cfg.Prepare != nil {
		raw = h.cfg.Prepare(raw)
	}
	return codec.Decode(raw, h.cfg.Schema)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
