package oauth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSafetyMargin is how far ahead of expiry a token is refreshed.
	DefaultSafetyMargin = 5 * time.Minute
	// defaultLifetime applies when the provider omits an expiry.
	defaultLifetime = time.Hour
)

// Guard hands out a valid access token for one owner, refreshing at most
// once at a time no matter how many tasks ask concurrently.
type Guard struct {
	owner     string
	refresher Refresher
	store     CredentialStore
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger
	group     *singleflight.Group
	observe   func(owner string, err error)

	mu     sync.Mutex
	creds  CredentialSet
	failed error
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) GuardOption {
	return func(g *Guard) { g.margin = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// WithRefreshGroup shares the refresh gate between guards for the same owner.
func WithRefreshGroup(group *singleflight.Group) GuardOption {
	return func(g *Guard) { g.group = group }
}

// WithRefreshObserver is called after every refresh attempt.
func WithRefreshObserver(fn func(owner string, err error)) GuardOption {
	return func(g *Guard) { g.observe = fn }
}

// NewGuard creates a guard seeded with creds.
func NewGuard(owner string, creds CredentialSet, refresher Refresher, store CredentialStore, opts ...GuardOption) *Guard {
	g := &Guard{
		owner:     owner,
		refresher: refresher,
		store:     store,
		margin:    DefaultSafetyMargin,
		now:       time.Now,
		logger:    slog.Default(),
		creds:     creds,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.group == nil {
		g.group = &singleflight.Group{}
	}
	return g
}

// LoadGuard reads the owner's stored credential and wraps it in a Guard.
func LoadGuard(ctx context.Context, owner string, store CredentialStore, refresher Refresher, opts ...GuardOption) (*Guard, error) {
	creds, err := store.LoadCredential(ctx, owner)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, &CredentialError{Owner: owner, Reason: ReasonMissing}
	}
	return NewGuard(owner, *creds, refresher, store, opts...), nil
}

// Owner returns the credential owner.
func (g *Guard) Owner() string { return g.owner }

// Current returns a snapshot of the credential set.
func (g *Guard) Current() CredentialSet {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creds
}

// EnsureValid returns an access token that will not expire within the safety
// margin. Once a refresh has failed every later call returns that failure.
func (g *Guard) EnsureValid(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.failed != nil {
		err := g.failed
		g.mu.Unlock()
		return "", err
	}
	creds := g.creds
	g.mu.Unlock()

	if !g.stale(creds) {
		return creds.AccessToken, nil
	}

	v, err, _ := g.group.Do(g.owner, func() (any, error) {
		return g.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		g.mu.Lock()
		g.failed = err
		g.mu.Unlock()
		return "", err
	}

	next := v.(CredentialSet)
	g.mu.Lock()
	if next.Expiry.After(g.creds.Expiry) {
		g.creds = next
	}
	g.mu.Unlock()
	return next.AccessToken, nil
}

func (g *Guard) stale(c CredentialSet) bool {
	if c.AccessToken == "" || c.Expiry.IsZero() {
		return true
	}
	return !g.now().Add(g.margin).Before(c.Expiry)
}

// refresh runs inside the singleflight gate. A caller that observed stale
// credentials just before another refresh landed finds them fresh here.
func (g *Guard) refresh(ctx context.Context) (CredentialSet, error) {
	g.mu.Lock()
	current := g.creds
	g.mu.Unlock()
	if !g.stale(current) {
		return current, nil
	}

	next, err := g.exchange(ctx, current)
	if g.observe != nil {
		g.observe(g.owner, err)
	}
	if err != nil {
		g.logger.Warn("credential refresh failed", "owner", g.owner, "error", err)
		return CredentialSet{}, err
	}

	g.mu.Lock()
	g.creds = next
	g.mu.Unlock()
	g.logger.Info("access token refreshed", "owner", g.owner, "expiry", next.Expiry)
	return next, nil
}

func (g *Guard) exchange(ctx context.Context, current CredentialSet) (CredentialSet, error) {
	if current.RefreshToken == "" {
		return CredentialSet{}, &CredentialError{Owner: g.owner, Reason: ReasonRefreshFailed, Err: errors.New("no refresh token")}
	}
	tok, err := g.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return CredentialSet{}, &CredentialError{Owner: g.owner, Reason: ReasonRefreshFailed, Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		return CredentialSet{}, &CredentialError{Owner: g.owner, Reason: ReasonRefreshFailed, Err: errors.New("provider returned no access token")}
	}

	next := CredentialSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: current.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if next.Expiry.IsZero() {
		next.Expiry = g.now().Add(defaultLifetime)
	}

	// Persist before the new token is handed out.
	if g.store != nil {
		if err := g.store.SaveCredential(ctx, g.owner, next); err != nil {
			return CredentialSet{}, &CredentialError{Owner: g.owner, Reason: ReasonPersistFailed, Err: err}
		}
	}
	return next, nil
}
