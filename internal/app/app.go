package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/busgo/internal/broker/rabbitmq"
	"github.com/kirinyoku/busgo/internal/config"
	"github.com/kirinyoku/busgo/internal/gateway"
	"github.com/kirinyoku/busgo/internal/postgres"
	"github.com/kirinyoku/busgo/internal/redis"
	"github.com/kirinyoku/busgo/internal/repository"
	"github.com/kirinyoku/busgo/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/busgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
	"github.com/kirinyoku/busgo/internal/service"
	"github.com/kirinyoku/busgo/internal/service/booking"
	"github.com/kirinyoku/busgo/internal/service/inventory"
	"github.com/kirinyoku/busgo/internal/service/reclaimer"
	httpgin "github.com/kirinyoku/busgo/internal/transport/http/gin"
	"github.com/kirinyoku/busgo/migrations"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type Role string

const (
	RoleInventory Role = "inventory"
	// RoleBooking serves bookings and runs the expiry sweep. Without
	// INVENTORY_URL it also hosts the inventory in-process.
	RoleBooking Role = "booking"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	runners    []*reclaimer.Runner
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, role Role) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// Redis-backed helpers stay nil when Redis is disabled.
	var (
		rdb        goredis.UniversalClient
		cache      *redisrepo.Cache
		seatEvents *redisrepo.SeatEvents
		idem       *redisrepo.IdempotencyStore
		limiter    booking.Limiter
		locker     reclaimer.Locker
	)
	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: "busgo-" + string(role),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		rdb = client
		a.closers = append(a.closers, func() { _ = client.Close() })

		cache = redisrepo.NewCache(rdb)
		seatEvents = redisrepo.NewSeatEvents(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, 24*time.Hour)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "rl:initiate", cfg.RateLimit.Limit, cfg.RateLimit.Window)
		locker = redisrepo.NewLocker(rdb)
	}

	embedInventory := role == RoleInventory || cfg.Inventory.URL == ""

	invStore, bookingStore, err := a.openStores(ctx, role, embedInventory)
	if err != nil {
		return nil, err
	}

	svcs := &service.Services{}

	if embedInventory {
		svcs.Inventory = inventory.New(invStore, cache, seatEvents, logger, inventory.Config{
			PlaceholderTTL:   cfg.Inventory.PlaceholderTTL,
			PlaceholderBatch: cfg.Reclaimer.BatchSize,
		})

		inv := svcs.Inventory
		a.runners = append(a.runners, reclaimer.NewRunner(
			"stale-placeholders",
			reclaimer.SweepFunc(func(ctx context.Context) (reclaimer.Result, error) {
				n, err := inv.ReclaimStalePlaceholders(ctx)
				return reclaimer.Result{Found: n, Processed: n}, err
			}),
			locker,
			logger,
			reclaimer.Config{
				Interval:     cfg.Inventory.PlaceholderInterval,
				InitialDelay: cfg.Reclaimer.InitialDelay,
				LockTTL:      cfg.Reclaimer.LockTTL,
			},
		))
	}

	if role == RoleBooking {
		var gw gateway.Gateway
		if embedInventory {
			gw = gateway.NewLocal(svcs.Inventory)
		} else {
			gw = gateway.NewClient(cfg.Inventory.URL, nil)
		}

		var events booking.EventPublisher
		if cfg.AMQP.URL != "" {
			pub, err := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize rabbitmq: %w", err)
			}
			events = pub
			a.closers = append(a.closers, func() { _ = pub.Close() })
		}

		svcs.Booking = booking.New(bookingStore, gw, limiter, events, logger, booking.Config{})

		svcs.Expiry = reclaimer.NewRunner(
			"expired-bookings",
			reclaimer.NewExpiredBookings(svcs.Booking, cfg.Reclaimer.BatchSize, logger),
			locker,
			logger,
			reclaimer.Config{
				Interval:     cfg.Reclaimer.Interval,
				InitialDelay: cfg.Reclaimer.InitialDelay,
				LockTTL:      cfg.Reclaimer.LockTTL,
			},
		)
		a.runners = append(a.runners, svcs.Expiry)
	}

	router := httpgin.NewRouter(svcs, seatEvents, idem, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// openStores returns the inventory store when this process hosts the
// inventory and the booking store when it hosts bookings. Each side gets
// its own store; with Postgres that means its own pool, so a booking
// transaction waiting on an in-process inventory call never competes with
// it for connections.
func (a *App) openStores(ctx context.Context, role Role, embedInventory bool) (repository.InventoryStore, repository.BookingStore, error) {
	cfg := a.cfg

	if cfg.Storage == config.StorageMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), memory.NewStore(), nil
	}

	var (
		invStore     repository.InventoryStore
		bookingStore repository.BookingStore
	)

	if embedInventory {
		store, err := a.openPostgres(ctx, "busgo-inventory", migrations.Inventory)
		if err != nil {
			return nil, nil, err
		}
		invStore = store
	}

	if role == RoleBooking {
		store, err := a.openPostgres(ctx, "busgo-booking", migrations.Booking)
		if err != nil {
			return nil, nil, err
		}
		bookingStore = store
	}

	return invStore, bookingStore, nil
}

func (a *App) openPostgres(ctx context.Context, appName, schema string) (*postgresrepo.Store, error) {
	pool, err := postgres.New(ctx, postgres.Config{
		DSN:      a.cfg.Postgres.DSN(),
		MaxConns: a.cfg.Postgres.MaxConns,
		AppName:  appName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres for %s: %w", schema, err)
	}
	a.closers = append(a.closers, pool.Close)

	if a.cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool, migrations.FS, schema); err != nil {
			return nil, fmt.Errorf("failed to migrate %s schema: %w", schema, err)
		}
	}

	return postgresrepo.NewStore(pool), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Background sweeps
	for _, r := range a.runners {
		g.Go(func() error {
			return r.Run(gCtx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// Handler exposes the router for in-process tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
