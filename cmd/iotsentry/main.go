package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"iotsentry/api/server"
	"iotsentry/core/audit"
	"iotsentry/core/identity"
	"iotsentry/core/ledger"
	"iotsentry/core/sentinel"
	"iotsentry/core/storage"
)

// Default block production interval
var mineInterval = 3 * time.Second

func init() {
	godotenv.Load()
	if val := os.Getenv("MINE_INTERVAL_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			mineInterval = time.Duration(ms) * time.Millisecond
		}
	}
}

func chainConfig() ledger.Config {
	cfg := ledger.Config{Difficulty: 2}
	if val := os.Getenv("POW_DIFFICULTY"); val != "" {
		if d, err := strconv.Atoi(val); err == nil && d >= 0 {
			cfg.Difficulty = d
		}
	}
	if os.Getenv("MINE_EMPTY_POOL") == "true" {
		cfg.AllowEmptyMine = true
	}
	if val := os.Getenv("MAX_POOL_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.MaxPoolSize = n
		}
	}
	return cfg
}

func main() {
	// Log to file as well as stdout
	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = "iotsentry-node.log"
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	log.Println("Starting IoTSentry node")

	dbPath := os.Getenv("SENTRY_DB_PATH")
	if dbPath == "" {
		dbPath = "sentrydata"
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open chain storage: %v", err)
	}
	defer store.Close()

	cfg := chainConfig()
	var chain *ledger.Chain
	hasChain, err := store.HasChain()
	if err != nil {
		log.Fatalf("Failed to probe chain storage: %v", err)
	}
	if hasChain {
		// LoadChain validates before returning; a corrupted store is fatal
		// here rather than trusted.
		chain, err = store.LoadChain(cfg)
		if err != nil {
			log.Fatalf("Refusing to start on unvalidated chain: %v", err)
		}
		log.Printf("Chain restored: %d blocks, %d pending", chain.Height(), chain.PendingCount())
	} else {
		chain = ledger.New(cfg)
		if err := store.SaveChain(chain); err != nil {
			log.Fatalf("Failed to persist genesis: %v", err)
		}
		log.Printf("New chain created (difficulty %d)", cfg.Difficulty)
	}

	registry := identity.NewRegistry()
	auditLogger := audit.NewStdoutLogger()
	manager := sentinel.New(chain, registry, nil, auditLogger)
	manager.RegisterAlertHandler(func(a sentinel.Alert) {
		log.Printf("[ALERT] %s severity=%s id=%s", a.Type, a.Severity, a.ID)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background miner keeps proof-of-work off the request path.
	miner := ledger.NewMiner(chain, mineInterval)
	go miner.Run(ctx)

	// Persist on a slow cadence as a safety net; handlers persist after
	// their own mutations.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := store.SaveChain(chain); err != nil {
					log.Printf("Periodic persist failed: %v", err)
				}
			}
		}
	}()

	srv := server.NewServer(manager, chain, store)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down, persisting chain")
	if err := store.SaveChain(chain); err != nil {
		log.Printf("Final persist failed: %v", err)
	}
}
