// Package upstream describes the tool-providing child processes the gateway
// fronts and builds the registry used to construct their bridges.
package upstream

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/mcpgate/internal/config"
)

// DefaultTokenArg is the argument name a delegated access token is injected
// under when a descriptor does not name one.
const DefaultTokenArg = "access_token"

// Descriptor is the static description of one upstream. Values are copied
// in and out of a Registry, so holders cannot mutate a registered upstream.
type Descriptor struct {
	Name    string            `toml:"name"`
	Title   string            `toml:"title"` // shown in error results; defaults to Name
	Prefix  string            `toml:"prefix"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`

	// DelegatedAuth makes the gateway inject the caller's delegated access
	// token into call arguments, refusing the call when none is available.
	// TokenProviders names the credential stores consulted for this upstream,
	// in order; without them only the built-in routes apply.
	DelegatedAuth  bool     `toml:"delegated_auth"`
	TokenArg       string   `toml:"token_arg"`
	TokenProviders []string `toml:"token_providers"`
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	d.Args = slices.Clone(d.Args)
	d.Env = maps.Clone(d.Env)
	d.TokenProviders = slices.Clone(d.TokenProviders)
	return d
}

// DisplayName returns Title, or Name when no title is set.
func (d Descriptor) DisplayName() string {
	if d.Title == "" {
		return d.Name
	}
	return d.Title
}

// TokenArgument returns the argument name used for delegated tokens.
func (d Descriptor) TokenArgument() string {
	if d.TokenArg == "" {
		return DefaultTokenArg
	}
	return d.TokenArg
}

// Environ returns env overlaid on base (typically os.Environ()). Later
// entries win, so descriptor values override inherited ones.
func (d Descriptor) Environ(base []string) []string {
	out := slices.Clone(base)
	keys := slices.Sorted(maps.Keys(d.Env))
	for _, k := range keys {
		out = append(out, k+"="+d.Env[k])
	}
	return out
}

// Registry is an ordered, validated, immutable set of descriptors.
type Registry struct {
	descs []Descriptor
}

// NewRegistry validates descs and returns a registry holding copies of them.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	if err := Validate(descs); err != nil {
		return nil, err
	}
	r := &Registry{descs: make([]Descriptor, len(descs))}
	for i, d := range descs {
		r.descs[i] = d.Clone()
	}
	return r, nil
}

// Descriptors returns copies of the registered descriptors in order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descs))
	for i, d := range r.descs {
		out[i] = d.Clone()
	}
	return out
}

// Len returns the number of registered upstreams.
func (r *Registry) Len() int { return len(r.descs) }

// Match returns the descriptor whose prefix starts toolName and the name with
// the prefix stripped. Prefixes are disjoint, so at most one can match; the
// longest is taken regardless.
func (r *Registry) Match(toolName string) (Descriptor, string, bool) {
	best := -1
	for i, d := range r.descs {
		if strings.HasPrefix(toolName, d.Prefix) && (best < 0 || len(d.Prefix) > len(r.descs[best].Prefix)) {
			best = i
		}
	}
	if best < 0 {
		return Descriptor{}, "", false
	}
	d := r.descs[best]
	return d.Clone(), strings.TrimPrefix(toolName, d.Prefix), true
}

// Validate checks that names are unique and non-empty, commands are set, and
// prefixes are non-empty and pairwise disjoint (neither equal nor one a
// prefix of another).
func Validate(descs []Descriptor) error {
	names := make(map[string]struct{}, len(descs))
	for i, d := range descs {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("upstream %d: name is required", i)
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("upstream %q: duplicate name", d.Name)
		}
		names[d.Name] = struct{}{}
		if strings.TrimSpace(d.Command) == "" {
			return fmt.Errorf("upstream %q: command is required", d.Name)
		}
		if d.Prefix == "" {
			return fmt.Errorf("upstream %q: prefix is required", d.Name)
		}
		for _, other := range descs[:i] {
			if strings.HasPrefix(d.Prefix, other.Prefix) || strings.HasPrefix(other.Prefix, d.Prefix) {
				return fmt.Errorf("upstream %q: prefix %q overlaps prefix %q of upstream %q",
					d.Name, d.Prefix, other.Prefix, other.Name)
			}
		}
	}
	return nil
}

// fileConfig is the on-disk TOML layout.
type fileConfig struct {
	Upstreams []Descriptor `toml:"upstream"`
}

// LoadFile reads descriptors from a TOML file with one [[upstream]] table per
// upstream. Env values of the form "$VAR" are expanded from the process
// environment so secrets stay out of the file.
func LoadFile(path string) ([]Descriptor, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("decode upstreams file %s: %w", path, err)
	}
	for i := range fc.Upstreams {
		for k, v := range fc.Upstreams[i].Env {
			if strings.HasPrefix(v, "$") {
				fc.Upstreams[i].Env[k] = os.Getenv(strings.TrimPrefix(v, "$"))
			}
		}
	}
	return fc.Upstreams, nil
}

// Defaults returns the reference pair of upstreams: the Meta Ads server
// (delegated auth) and the Postgres server.
func Defaults(cfg *config.Config) []Descriptor {
	return []Descriptor{
		{
			Name:           "meta-ads",
			Title:          "Meta Ads",
			Prefix:         "ads.",
			Command:        cfg.MetaAdsCommand,
			Args:           cfg.MetaAdsArgs,
			Env:            map[string]string{"PIPEBOARD_API_TOKEN": cfg.PipeboardAPIToken},
			DelegatedAuth:  true,
			TokenArg:       DefaultTokenArg,
			TokenProviders: []string{"facebook", "pipeboard"},
		},
		{
			Name:    "postgres",
			Title:   "PostgreSQL",
			Prefix:  "pg.",
			Command: cfg.PostgresMCPCommand,
			Args:    []string{"--access-mode=unrestricted"},
			Env:     map[string]string{"DATABASE_URI": cfg.DatabaseURL},
		},
	}
}

// Load builds the registry from cfg: the upstreams file when configured,
// otherwise the defaults.
func Load(cfg *config.Config) (*Registry, error) {
	descs := Defaults(cfg)
	if cfg.UpstreamsFile != "" {
		var err error
		descs, err = LoadFile(cfg.UpstreamsFile)
		if err != nil {
			return nil, err
		}
	}
	return NewRegistry(descs)
}
