// Package workspace caches the access-control configuration of the current
// user's workspace for five minutes.
package workspace

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/unkn0wn-root/cassync"
)

// GroupPowerUserPlus may read the workspace's access-control rules.
const GroupPowerUserPlus = "POWERUSER_PLUS"

type Subject struct {
	Type string `json:"type" msgpack:"type"`
	ID   string `json:"id" msgpack:"id"`
}

type AccessControlRule struct {
	ID          string    `json:"id" msgpack:"id"`
	DisplayName string    `json:"displayName" msgpack:"displayName"`
	Subjects    []Subject `json:"subjects,omitempty" msgpack:"subjects,omitempty"`
	Resources   []string  `json:"resources,omitempty" msgpack:"resources,omitempty"`
}

// Config is the cached aggregate.
type Config struct {
	ID    string
	Rules []AccessControlRule
}

type Profile struct {
	ID     string
	Groups []string
}

// Service is the remote surface the store reads from.
type Service interface {
	WorkspaceIDForProfile(ctx context.Context, profileID string) (string, error)
	ListAccessControlRules(ctx context.Context, workspaceID string) ([]AccessControlRule, error)
}

type Options struct {
	TTL    time.Duration    // 0 => 5m
	Now    func() time.Time // nil => time.Now
	Logger cassync.Logger
	Hooks  cassync.Hooks
}

// Store holds one workspace Config. Create one per signed-in profile.
type Store struct {
	svc     Service
	profile func() Profile
	cache   *cassync.StaleCache[Config]
}

func NewStore(svc Service, profile func() Profile, opts Options) (*Store, error) {
	if svc == nil {
		return nil, fmt.Errorf("workspace: service is required")
	}
	if profile == nil {
		return nil, fmt.Errorf("workspace: profile accessor is required")
	}
	s := &Store{svc: svc, profile: profile}

	var err error
	s.cache, err = cassync.NewStaleCache(cassync.StaleCacheOptions[Config]{
		Fetch:  s.fetchConfig,
		TTL:    opts.TTL,
		Now:    opts.Now,
		Logger: opts.Logger,
		Hooks:  opts.Hooks,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// fetchConfig resolves the workspace and, for power users, its rules.
func (s *Store) fetchConfig(ctx context.Context) (Config, error) {
	p := s.profile()
	id, err := s.svc.WorkspaceIDForProfile(ctx, p.ID)
	if err != nil {
		return Config{}, fmt.Errorf("workspace id for profile %q: %w", p.ID, err)
	}
	cfg := Config{ID: id, Rules: []AccessControlRule{}}
	if slices.Contains(p.Groups, GroupPowerUserPlus) {
		if cfg.Rules, err = s.svc.ListAccessControlRules(ctx, id); err != nil {
			return Config{}, fmt.Errorf("list rules for workspace %q: %w", id, err)
		}
	}
	return cfg, nil
}

// fetchRules always lists rules, whatever the profile's groups.
func (s *Store) fetchRules(ctx context.Context) (Config, error) {
	p := s.profile()
	id, err := s.svc.WorkspaceIDForProfile(ctx, p.ID)
	if err != nil {
		return Config{}, fmt.Errorf("workspace id for profile %q: %w", p.ID, err)
	}
	rules, err := s.svc.ListAccessControlRules(ctx, id)
	if err != nil {
		return Config{}, fmt.Errorf("list rules for workspace %q: %w", id, err)
	}
	return Config{ID: id, Rules: rules}, nil
}

func (s *Store) Initialize(ctx context.Context) error { return s.cache.Initialize(ctx) }
func (s *Store) Refresh(ctx context.Context) error    { return s.cache.Refresh(ctx) }

func (s *Store) EnsureFresh(ctx context.Context, force bool) error {
	return s.cache.EnsureFresh(ctx, force)
}

// ListRules returns the cached rules while they are fresh; otherwise it
// lists them remotely and returns the fetched rules directly. If a Refresh
// started after the listing commits first, the listing is dropped and the
// refreshed rules are returned.
func (s *Store) ListRules(ctx context.Context) ([]AccessControlRule, error) {
	cfg, err := s.cache.LoadWith(ctx, s.fetchRules)
	if err != nil {
		return nil, err
	}
	return cfg.Rules, nil
}

func (s *Store) State() cassync.State[Config] { return s.cache.State() }

func (s *Store) Subscribe(fn func(cassync.State[Config])) func() { return s.cache.Subscribe(fn) }
