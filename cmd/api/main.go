package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"moneta.org/internal/audit"
	"moneta.org/internal/httpapi"
	"moneta.org/internal/ledger"
	"moneta.org/internal/obs"
	"moneta.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Optional Postgres handle: audit trail persistence plus /readyz ping.
	var db *sql.DB
	if dsn := os.Getenv("MONETA_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		sink := audit.NewPostgresSink(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sink.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("audit schema: %v", err)
		}
		cancel()
		audit.SetSink(sink)
	}

	dir := ledger.NewDirectory()
	if err := seedDemoAccounts(dir); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	engine := ledger.NewEngine(dir)
	if d := durationEnv("MONETA_LOAN_DELAY"); d > 0 {
		engine.LoanDelay = d
	}
	if d := durationEnv("MONETA_SESSION_TTL"); d > 0 {
		engine.SessionTTL = d
	}

	events := stream.New()
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, engine, events)

	addr := os.Getenv("MONETA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting moneta-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func durationEnv(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}

// seedDemoAccounts loads the two demo accounts the UI ships with.
func seedDemoAccounts(dir *ledger.Directory) error {
	type seedAccount struct {
		owner    string
		pin      int
		rate     string
		currency string
		locale   string
		amounts  []string
		dates    []string
	}
	seeds := []seedAccount{
		{
			owner: "Jonas Schmedtmann", pin: 1111, rate: "1.2", currency: "EUR", locale: "pt-PT",
			amounts: []string{"200", "455.23", "-306.5", "25000", "-642.21", "-133.9", "79.97", "1300"},
			dates: []string{
				"2019-11-18T21:31:17.178Z", "2019-12-23T07:42:02.383Z",
				"2020-01-28T09:15:04.904Z", "2020-04-01T10:17:24.185Z",
				"2020-05-08T14:11:59.604Z", "2020-05-27T17:01:17.194Z",
				"2020-07-11T23:36:17.929Z", "2020-07-12T10:51:36.790Z",
			},
		},
		{
			owner: "Jessica Davis", pin: 2222, rate: "1.5", currency: "USD", locale: "en-US",
			amounts: []string{"5000", "3400", "-150", "-790", "-3210", "-1000", "8500", "-30"},
			dates: []string{
				"2019-11-01T13:15:33.035Z", "2019-11-30T09:48:16.867Z",
				"2019-12-25T06:04:23.907Z", "2020-01-25T14:18:46.235Z",
				"2020-02-05T16:33:06.386Z", "2020-04-10T14:43:26.374Z",
				"2020-06-25T18:49:59.371Z", "2020-07-26T12:01:20.894Z",
			},
		},
	}

	for _, s := range seeds {
		movements := make([]ledger.Movement, len(s.amounts))
		for i, raw := range s.amounts {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339, s.dates[i])
			if err != nil {
				return err
			}
			movements[i] = ledger.Movement{Amount: amount, OccurredAt: at}
		}
		rate, err := decimal.NewFromString(s.rate)
		if err != nil {
			return err
		}
		acc, err := ledger.NewAccount(s.owner, s.pin, rate, s.currency, s.locale, movements)
		if err != nil {
			return err
		}
		if err := dir.Register(acc); err != nil {
			return err
		}
	}
	return nil
}
