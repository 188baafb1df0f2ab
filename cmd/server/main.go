package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/massarena/backend/internal/api"
	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/database"
	"github.com/massarena/backend/internal/indexer"
	"github.com/massarena/backend/internal/ledger"
	"github.com/massarena/backend/internal/migrations"
	"github.com/massarena/backend/internal/redis"
	"github.com/massarena/backend/internal/room"
	"github.com/massarena/backend/internal/ticket"
	"github.com/massarena/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("[BOOT] Server identity: %s", cfg.ServerID)

	// Ledger store: Postgres when configured, in-memory otherwise.
	var db *sqlx.DB
	var store ledger.Store
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if os.Getenv("MIGRATE_ON_START") == "true" {
			log.Println("Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}

		store, err = ledger.NewPostgresStore(db, cfg.ServerID)
		if err != nil {
			log.Fatalf("Failed to initialize ledger store: %v", err)
		}
	} else {
		log.Printf("[LEDGER] DATABASE_URL not set - running on in-memory store (mock mode)")
		store = ledger.NewMemoryStore()
	}
	ldg := ledger.New(store)

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Exit ticket signer
	key, err := ticket.LoadKey(cfg.SignerKeyFile)
	if err != nil {
		log.Fatalf("Failed to load signer key: %v", err)
	}
	log.Printf("[BOOT] Ticket signer address: %s", ticket.SignerAddress(key))

	issuer, err := ticket.NewIssuer(cfg.ContractAddress, cfg.ServerID, key, rdb, db)
	if err != nil {
		log.Fatalf("Failed to initialize ticket issuer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background reconciliation against the chain indexer
	if cfg.IndexerBaseURL != "" {
		feed := indexer.NewClient(cfg.IndexerBaseURL, cfg.ServerID, cfg.IndexerPageSize)
		rec := ledger.NewReconciler(ldg, feed, issuer)
		go rec.Start(ctx, time.Duration(cfg.IndexerPollSeconds)*time.Second)
	} else {
		log.Printf("[RECONCILE] INDEXER_BASE_URL not set - deposits and exits will not be observed")
	}

	// Room world and tick loop
	hub := ws.NewHub()
	rm := room.New(cfg, ldg, issuer, hub, rdb)
	go rm.Run(ctx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, cfg, rm, hub, ldg, issuer)

	log.Printf("[BOOT] Listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
