package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/citylink/internal/config"
	"github.com/aretw0/citylink/internal/logging"
	intobs "github.com/aretw0/citylink/internal/observability"
	"github.com/aretw0/citylink/internal/presentation/tui"
	"github.com/aretw0/citylink/internal/profile"
	"github.com/aretw0/citylink/pkg/adapters/file"
	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/adapters/redis"
	"github.com/aretw0/citylink/pkg/observability"
	"github.com/aretw0/citylink/pkg/persistence/middleware"
	"github.com/aretw0/citylink/pkg/ports"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/aretw0/citylink/pkg/store"
)

// lockPrefix namespaces distributed lock keys in Redis.
const lockPrefix = "citylink:"

// App is one fully wired local participant.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Profile     *profile.Profile
	ProfilePath string
	Ledger      *memory.Ledger
	Channel     ports.KeyValueChannel
	Store       *store.Store
	Client      *session.Client

	mu      sync.Mutex
	closers []func() error
}

// Open builds the channel, store, ledger and client described by cfg and
// resyncs the client with the shared store. Notices are written to out; a nil
// out routes them to the logger instead.
func Open(ctx context.Context, cfg *config.Config, out io.Writer) (*App, error) {
	if cfg == nil {
		return nil, errors.New("missing configuration")
	}
	logger := logging.New(logging.ParseLevel(cfg.Log.Level))

	prof, err := profile.Load(cfg.Profile.Path)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Profile:     prof,
		ProfilePath: cfg.Profile.Path,
		Ledger:      prof.Ledger(),
	}

	base, storeOpts, err := app.openChannel(ctx, prof.ClientID)
	if err != nil {
		return nil, err
	}
	app.Channel = base
	if cfg.Encryption.Passphrase != "" {
		key := middleware.KeyFromPassphrase(cfg.Encryption.Passphrase, cfg.Store.Prefix)
		app.Channel = middleware.Chain(base, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	storeOpts = append(storeOpts, store.WithPrefix(cfg.Store.Prefix), store.WithLogger(logger))
	if cfg.Store.Optimistic {
		storeOpts = append(storeOpts, store.WithOptimisticConcurrency())
	}
	app.Store = store.New(app.Channel, storeOpts...)

	var notifier ports.Notifier = logging.NewNotifier(logger)
	if out != nil {
		notifier = tui.NewNotifier(out)
	}

	hooks := observability.NewAggregator(observability.LoggingHooks(logger), intobs.Hooks())
	opts := append(prof.Options(),
		session.WithLogger(logger),
		session.WithNotifier(notifier),
		session.WithApplyPolicy(cfg.Policy()),
		session.WithLifecycleHooks(hooks.Hooks()),
	)
	app.Client = session.NewClient(app.Store, app.Ledger, opts...)

	app.Client.Resync(ctx)
	logger.Debug("Client opened", "client_id", app.Client.ID(), "backend", cfg.Store.Backend)
	return app, nil
}

func (a *App) openChannel(ctx context.Context, origin string) (ports.KeyValueChannel, []store.Option, error) {
	cfg := a.Config
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewBus().View(origin), nil, nil
	case config.BackendFile:
		return file.New(cfg.Store.Dir, file.WithLogger(a.Logger)), nil, nil
	case config.BackendRedis:
		ch := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithOrigin(origin),
			redis.WithEventsChannel(cfg.Redis.Channel),
		)
		if err := ch.Client().Ping(ctx).Err(); err != nil {
			_ = ch.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.closers = append(a.closers, ch.Close)
		var opts []store.Option
		if cfg.Redis.Lock {
			opts = append(opts, store.WithLocker(redis.NewLocker(ch.Client(), lockPrefix), store.DefaultLockTTL))
		}
		return ch, opts, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Persist writes the client's binding, applied offers and resources back to the
// profile. Trades another process recorded in the same profile since it was
// loaded are first replayed on the in-memory ledger, so their effect is kept.
func (a *App) Persist() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adoptExternalApplies()
	a.Profile.Capture(a.Client, a.Ledger)
	if err := a.Profile.Save(a.ProfilePath); err != nil {
		return err
	}
	a.Logger.Debug("Profile saved", "path", a.ProfilePath)
	return nil
}

func (a *App) adoptExternalApplies() {
	disk, err := profile.Load(a.ProfilePath)
	if err != nil || disk.ClientID != a.Client.ID() {
		return
	}
	if adopted := a.Client.AdoptApplied(context.Background(), disk.Applied); len(adopted) > 0 {
		a.Logger.Info("Adopted trades applied by another process", "offers", adopted)
	}
}

// Close persists the profile and releases backend connections.
func (a *App) Close() error {
	errs := []error{a.Persist()}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// View assembles what the status screen shows.
func (a *App) View() tui.View {
	stocks := a.Ledger.Stocks()
	lines := make([]tui.ResourceLine, 0, len(stocks))
	for _, k := range a.Ledger.Keys() {
		lines = append(lines, tui.ResourceLine{Key: k, Amount: stocks[k].Amount, Cap: stocks[k].Cap})
	}
	return tui.View{
		State:     a.Client.Snapshot(),
		Label:     a.Client.StatusLabel(),
		Resources: lines,
		Incoming:  a.Client.IncomingOffers(),
		Outgoing:  a.Client.OutgoingOffers(),
	}
}

func (a *App) persistQuietly() {
	if err := a.Persist(); err != nil {
		a.Logger.Error("Failed to save profile", "err", err)
	}
}
