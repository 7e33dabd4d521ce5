package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"fest-ticketing/internal/checkin"
	"fest-ticketing/internal/checkin/checkin_api"
	"fest-ticketing/internal/config"
	"fest-ticketing/internal/database/migrations"
	"fest-ticketing/internal/export"
	"fest-ticketing/internal/kafka"
	"fest-ticketing/internal/logger"
	"fest-ticketing/internal/qr"
	"fest-ticketing/internal/store"
	"fest-ticketing/internal/tickets"
	redislock "fest-ticketing/internal/tickets/redis"
	"fest-ticketing/internal/tickets/ticket_api"
)

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	bunDB := connectDatabase(cfg, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: "./migrations",
			AutoMigrate:   true,
		})
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "Migrations applied")
	}

	db := store.New(bunDB)
	encoder := qr.NewEncoder(cfg.Festival.DataDir)
	decoder := qr.NewDecoder()

	ticketService := tickets.NewTicketService(db, encoder, tickets.Options{
		CounterStart: cfg.Festival.CounterStart,
		KeyWidth:     cfg.Festival.KeyWidth,
		LabelPrefix:  cfg.Festival.LabelPrefix,
		MaxKeyProbes: cfg.Festival.MaxKeyProbes,
	})
	ticketService.Logger = log

	checkinService := checkin.NewService(db, decoder, cfg.Festival.Season)
	checkinService.Logger = log

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
		}
		log.Info("REDIS", "Redis connection successful")
		ticketService.Lock = redislock.NewSeasonLock(rdb)
	}

	if cfg.Kafka.Enabled {
		if !cfg.Kafka.MockMode {
			topics := []string{cfg.Kafka.Topics.TicketIssued, cfg.Kafka.Topics.TicketScanned}
			if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
				log.Warn("KAFKA", fmt.Sprintf("Failed to ensure topics: %v", err))
			}
		}
		producer := kafka.NewProducer(
			cfg.Kafka.Brokers,
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.TicketScanned,
			log,
			cfg.Kafka.MockMode,
		)
		defer producer.Close()
		ticketService.Events = producer
		checkinService.Events = producer
	}

	ticketHandler := ticket_api.NewHandler(ticketService, export.NewExporter(db), log, cfg.Festival.Season)
	checkinHandler := checkin_api.NewHandler(checkinService, log)

	r := chi.NewRouter()
	r.Route("/ticket", func(r chi.Router) {
		r.Post("/issue", ticketHandler.IssueTicket)
		r.Get("/{userID}", ticketHandler.GetTicket)
		r.Get("/{userID}/image", ticketHandler.GetTicketImage)
		r.Put("/{userID}/days", ticketHandler.SelectDays)
		r.Put("/{userID}/questionnaire", ticketHandler.SetQuestionnaire)
	})
	r.Route("/user", func(r chi.Router) {
		r.Post("/start", ticketHandler.RecordStart)
		r.Put("/{userID}/language", ticketHandler.ChangeLanguage)
		r.Delete("/{userID}", ticketHandler.DeleteUser)
	})
	r.Get("/users", ticketHandler.ListUsers)
	r.Post("/checkin/scan", checkinHandler.Scan)
	r.Route("/export", func(r chi.Router) {
		r.Get("/tickets.csv", ticketHandler.ExportTickets)
		r.Get("/utm.csv", ticketHandler.ExportUTM)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "Fest ticketing service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "Shutdown complete")
}
