package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"job_distributor/internal/model"
	"job_distributor/internal/storage"
)

// CredentialSource looks up a user's stored channel credentials.
type CredentialSource interface {
	GetCredentials(ctx context.Context, userID int64, channelID string) (*model.ChannelCredentials, error)
}

// Options configures a Registry.
type Options struct {
	Client  HTTPClient
	Timeout time.Duration
	// AllowSimulation lets channels with missing credentials run simulated
	// instead of failing with ErrCredentialMissing.
	AllowSimulation bool
	// Settings holds process-wide values per channel id (feed endpoints,
	// country). User credentials override them.
	Settings map[string]map[string]string
	// Seed fixes simulated numbers; zero picks a random seed.
	Seed  uint64
	Clock func() time.Time
	Log   *slog.Logger
}

type adapterDeps struct {
	client    HTTPClient
	timeout   time.Duration
	simulated bool
	dice      *dice
	now       func() time.Time
	log       *slog.Logger
}

type registryKey struct {
	channel string
	user    int64
}

// Registry builds channel adapters and caches them by (channel, user).
type Registry struct {
	catalog *Catalog
	creds   CredentialSource
	opts    Options
	dice    *dice

	mu       sync.RWMutex
	adapters map[registryKey]Adapter
}

// NewRegistry creates a Registry. creds may be nil, in which case only
// process-wide settings are used.
func NewRegistry(catalog *Catalog, creds CredentialSource, opts Options) *Registry {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		catalog:  catalog,
		creds:    creds,
		opts:     opts,
		dice:     newDice(opts.Seed),
		adapters: make(map[registryKey]Adapter),
	}
}

// Catalog returns the catalog the registry resolves against.
func (r *Registry) Catalog() *Catalog { return r.catalog }

// Get returns the adapter of a channel for a user, building it on first use.
func (r *Registry) Get(ctx context.Context, channelID string, userID int64) (Adapter, error) {
	info, ok := r.catalog.Get(channelID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channelID)
	}
	k := registryKey{channel: info.ID, user: userID}

	r.mu.RLock()
	a, ok := r.adapters[k]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	a, err := r.build(ctx, info, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.adapters[k]; ok {
		return cached, nil
	}
	r.adapters[k] = a
	return a, nil
}

// Evict drops the cached adapter of a channel for a user, so that updated
// credentials take effect on the next Get.
func (r *Registry) Evict(channelID string, userID int64) {
	info, ok := r.catalog.Get(channelID)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.adapters, registryKey{channel: info.ID, user: userID})
	r.mu.Unlock()
}

// Len returns the number of cached adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

func (r *Registry) build(ctx context.Context, info Info, userID int64) (Adapter, error) {
	values := make(map[string]string)
	maps.Copy(values, r.opts.Settings[info.ID])

	if r.creds != nil && userID != 0 {
		c, err := r.creds.GetCredentials(ctx, userID, info.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load %s credentials: %w", info.ID, err)
		case c.IsActive:
			maps.Copy(values, c.Values)
		}
	}

	deps := adapterDeps{
		client:  r.opts.Client,
		timeout: r.opts.Timeout,
		dice:    r.dice,
		now:     r.opts.Clock,
		log:     r.opts.Log.With("channel", info.ID),
	}
	for _, req := range info.Requires {
		if values[req] != "" {
			continue
		}
		if !r.opts.AllowSimulation {
			return nil, fmt.Errorf("%w: %s needs %s", ErrCredentialMissing, info.ID, req)
		}
		deps.simulated = true
	}

	switch info.ID {
	case "jooble":
		return newJooble(info, values, deps), nil
	case "talent":
		return newTalent(values, deps), nil
	case "jobrapido":
		return newJobRapido(values, deps), nil
	default:
		return newSimulated(info, deps.dice, deps.log), nil
	}
}
