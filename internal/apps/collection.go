package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
)

// Collection is the type-erased surface of one entity kind, used by the
// service layer and the CLI. Entities cross it as JSON on the way in and as
// their concrete type on the way out.
type Collection interface {
	transfer.Target

	Columns() []string
	Len() int
	Load(ctx context.Context) error
	Query(p query.Params, offset, limit int) (items []any, total int)
	Get(id string) (any, bool)
	Create(ctx context.Context, raw json.RawMessage) (any, error)
	Update(ctx context.Context, id string, raw json.RawMessage) (any, error)
	Remove(ctx context.Context, id string) error
	// Refs resolves the references held by entity id. Dangling references
	// map to nil.
	Refs(id string) (map[string]any, error)
	Extract(ctx context.Context, c ai.Completer, prompt string, att *ai.Attachment) (draft any, text string, err error)
}

// Ref follows one reference of T to another collection.
type Ref[T any] func(T) (any, bool)

// RefTo builds a Ref resolving the id returned by key in target.
func RefTo[T any, P models.Entity[P]](target *store.Store[P], key func(T) string) Ref[T] {
	return func(v T) (any, bool) {
		p, ok := store.Resolve(target, key(v))
		if !ok {
			return nil, false
		}
		return p, true
	}
}

type collection[T models.Entity[T]] struct {
	*transfer.Binding[T]
	schema query.Schema[T]
	refs   map[string]Ref[T]
}

// Bind builds a Collection over s.
func Bind[T models.Entity[T]](name string, s *store.Store[T], schema query.Schema[T], contract transfer.Contract[T], refs map[string]Ref[T]) Collection {
	return &collection[T]{
		Binding: transfer.Bind(name, s, contract),
		schema:  schema,
		refs:    refs,
	}
}

func (c *collection[T]) Columns() []string { return c.Contract().Columns }

func (c *collection[T]) Len() int { return c.Store().Len() }

func (c *collection[T]) Load(ctx context.Context) error {
	_, warn := c.Store().Load(ctx)
	return warn
}

func (c *collection[T]) Query(p query.Params, offset, limit int) ([]any, int) {
	view := query.Apply(c.Store().List(), c.schema, p)
	page := query.Page(view, offset, limit)
	out := make([]any, len(page))
	for i, v := range page {
		out[i] = v
	}
	return out, len(view)
}

func (c *collection[T]) Get(id string) (any, bool) {
	v, ok := c.Store().Get(id)
	if !ok {
		return nil, false
	}
	return v, true
}

func (c *collection[T]) decode(raw json.RawMessage) (T, error) {
	var v T
	if err := c.Validate(raw); err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &transfer.ParseError{Format: string(transfer.FormatJSON), Err: err}
	}
	return v, nil
}

func (c *collection[T]) Create(ctx context.Context, raw json.RawMessage) (any, error) {
	v, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	d := c.Store().NewDraft(v)
	return commit(ctx, d)
}

// Update replaces entity id wholesale through a draft. Unknown ids follow
// the store's update policy.
func (c *collection[T]) Update(ctx context.Context, id string, raw json.RawMessage) (any, error) {
	v, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	d, err := c.Store().EditDraft(id)
	if errors.Is(err, store.ErrNotFound) && c.Store().UpdatePolicy() == store.Upsert {
		m := v.EntityMeta()
		m.ID = id
		d, err = c.Store().NewDraft(v.WithMeta(m)), nil
	}
	if err != nil {
		return nil, err
	}
	d.Edit(func(cur *T) {
		m := v.EntityMeta()
		m.ID = id
		*cur = v.WithMeta(m)
	})
	return commit(ctx, d)
}

func commit[T models.Entity[T]](ctx context.Context, d *store.Draft[T]) (any, error) {
	v, err := d.Commit(ctx)
	var pe *store.PersistenceError
	if err != nil && !errors.As(err, &pe) {
		return nil, err
	}
	return v, err
}

func (c *collection[T]) Remove(ctx context.Context, id string) error {
	return c.Store().Remove(ctx, id)
}

func (c *collection[T]) Refs(id string) (map[string]any, error) {
	v, ok := c.Store().Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	out := make(map[string]any, len(c.refs))
	for name, ref := range c.refs {
		if p, ok := ref(v); ok {
			out[name] = p
		} else {
			out[name] = nil
		}
	}
	return out, nil
}

// Extract asks the collaborator for a draft entity. The draft is not
// stored; callers review it and submit it through Create.
func (c *collection[T]) Extract(ctx context.Context, comp ai.Completer, prompt string, att *ai.Attachment) (any, string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\nAnswer with a single JSON object using these fields: ")
	b.WriteString(strings.Join(c.Columns(), ", "))
	v, text, err := ai.ExtractInto[T](ctx, comp, b.String(), att)
	if err != nil {
		return nil, "", err
	}
	return v, text, nil
}
