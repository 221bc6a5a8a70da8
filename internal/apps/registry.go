// Package apps declares the bundled applications: their collections, query
// schemas, import contracts, seed data and cross-collection relations.
package apps

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Settings are the per-app preferences persisted next to the collections.
type Settings struct {
	Title    string            `json:"title" yaml:"title"`
	Currency string            `json:"currency,omitempty" yaml:"currency,omitempty"`
	Locale   string            `json:"locale,omitempty" yaml:"locale,omitempty"`
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// App is one application and the collections it owns.
type App struct {
	Name        string
	collections []Collection
	byName      map[string]Collection
	settings    *store.Setting[Settings]
}

func newApp(name string, medium kv.Medium, defaults Settings, log *zap.Logger) *App {
	return &App{
		Name:     name,
		byName:   map[string]Collection{},
		settings: store.NewSetting(medium, kv.Namespace(name, "settings"), defaults, log),
	}
}

func (a *App) add(c Collection) {
	a.collections = append(a.collections, c)
	a.byName[c.Name()] = c
}

// Collection returns the collection called name.
func (a *App) Collection(name string) (Collection, bool) {
	c, ok := a.byName[name]
	return c, ok
}

// Collections lists the app's collections in declaration order.
func (a *App) Collections() []Collection { return a.collections }

// CollectionNames lists collection names in declaration order.
func (a *App) CollectionNames() []string {
	out := make([]string, len(a.collections))
	for i, c := range a.collections {
		out[i] = c.Name()
	}
	return out
}

// Targets exposes the collections to the transfer lifecycle.
func (a *App) Targets() []transfer.Target {
	out := make([]transfer.Target, len(a.collections))
	for i, c := range a.collections {
		out[i] = c
	}
	return out
}

// Settings returns the current preferences.
func (a *App) Settings() Settings { return a.settings.Get() }

// Locale is the collation locale named by the settings, language.Und when
// unset or unparsable.
func (a *App) Locale() language.Tag {
	tag, err := language.Parse(a.Settings().Locale)
	if err != nil {
		return language.Und
	}
	return tag
}

// SaveSettings replaces and persists the preferences.
func (a *App) SaveSettings(ctx context.Context, s Settings) error {
	return a.settings.Save(ctx, s)
}

// SettingsTarget exposes the preferences to the transfer lifecycle.
func (a *App) SettingsTarget() transfer.SettingsTarget { return transfer.BindSetting(a.settings) }

// Load rehydrates every collection and the settings. It never fails; the
// returned error joins the warnings of the individual loads.
func (a *App) Load(ctx context.Context) error {
	var warns []error
	for _, c := range a.collections {
		if err := c.Load(ctx); err != nil {
			warns = append(warns, err)
		}
	}
	if _, err := a.settings.Load(ctx); err != nil {
		warns = append(warns, err)
	}
	return errors.Join(warns...)
}

// Reset drops every collection and the settings, then reloads so the
// defaults are back in place.
func (a *App) Reset(ctx context.Context) error {
	if err := transfer.ResetAll(ctx, a.Targets(), a.SettingsTarget()); err != nil {
		return err
	}
	return a.Load(ctx)
}

// Registry holds every bundled app on one medium.
type Registry struct {
	apps map[string]*App
	log  *zap.Logger
}

// New builds all apps on medium. Call Load before use.
func New(medium kv.Medium, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{apps: map[string]*App{}, log: log}
	for _, build := range []func(kv.Medium, *zap.Logger) *App{
		newRecipes, newCV, newLessons, newFleet, newShop,
	} {
		a := build(medium, log)
		r.apps[a.Name] = a
	}
	return r
}

// Load rehydrates every app. Warnings are logged and returned joined; the
// registry is usable either way.
func (r *Registry) Load(ctx context.Context) error {
	var warns []error
	for _, name := range r.Names() {
		if err := r.apps[name].Load(ctx); err != nil {
			r.log.Warn("app loaded with warnings", zap.String("app", name), zap.Error(err))
			warns = append(warns, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(warns...)
}

// App returns the app called name.
func (r *Registry) App(name string) (*App, bool) {
	a, ok := r.apps[name]
	return a, ok
}

// Names lists the apps alphabetically.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.apps))
	for n := range r.apps {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
