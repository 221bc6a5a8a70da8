package kv

import (
	"context"
	"strings"
)

// HostPrefix scopes the keys served to remote clients. Collection keys built
// by Namespace never contain a slash, so hosted keys cannot collide with
// the collections a server owns.
const HostPrefix = "host/"

// Prefixed confines a Medium to the keys beginning with a fixed prefix.
// Callers see keys with the prefix stripped.
type Prefixed struct {
	next   Medium
	prefix string
}

// Prefix returns a view of m limited to keys under prefix.
func Prefix(m Medium, prefix string) *Prefixed {
	return &Prefixed{next: m, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	return p.next.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.next.Remove(ctx, p.prefix+key)
}

func (p *Prefixed) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.next.Keys(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, p.prefix)
	}
	return keys, nil
}
