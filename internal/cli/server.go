package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/config"
	"partyquiz-service/internal/infra/memory"
	infrapg "partyquiz-service/internal/infra/postgres"
	infraredis "partyquiz-service/internal/infra/redis"
	transport "partyquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// feedRunner is a change feed that needs its own consuming loop.
type feedRunner interface {
	Run(ctx context.Context) error
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Storage and the change feed come as a pair: with Postgres the feed is
	// driven by row triggers, so writers publish nothing; in-memory the store
	// publishes into either the local bus or, with Redis, the pub/sub bridge
	// shared across instances.
	var (
		store  app.Store
		loader app.ContentLoader
		feed   app.ChangeFeed
		runner feedRunner
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgStore := infrapg.NewStore(db)
		pgFeed := infrapg.NewFeed(pool)
		store, loader, feed, runner = pgStore, pgStore, pgFeed, pgFeed
	} else if redisClient != nil {
		redisFeed := infraredis.NewFeed(redisClient)
		memStore := memory.NewStore(redisFeed)
		store, loader, feed, runner = memStore, memStore, redisFeed, redisFeed
	} else {
		bus := memory.NewBus()
		memStore := memory.NewStore(bus)
		store, loader, feed = memStore, memStore, bus
	}

	if redisClient != nil {
		contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
		loader = infraredis.NewContentCache(redisClient, loader, contentTTL)
	}

	contentService := app.NewContentService(store, loader)
	gameService := app.NewGameService(store, feed)
	importer := app.NewImporter(store)

	wsHandler := transport.NewWSHandler(store, gameService, contentService)
	apiHandler := transport.NewAPIHandler(contentService, gameService, importer)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/host", wsHandler.ServeHost)
	mux.HandleFunc("/ws/play", wsHandler.ServePlay)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(runCtx)

	if runner != nil {
		group.Go(func() error {
			err := runner.Run(groupCtx)
			if groupCtx.Err() != nil {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		log.Printf("starting quiz session server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stop:
			log.Println("shutting down server...")
		case <-groupCtx.Done():
			log.Println("context canceled, shutting down server...")
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
