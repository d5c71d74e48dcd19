package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"curasync/internal/auth"
	"curasync/internal/config"
	"curasync/internal/handler"
	"curasync/internal/repository"
	"curasync/internal/service"
	"curasync/internal/service/s3"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	pgDSN := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=postgres sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.SSLMode,
	)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли рабочая база
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Name)
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectWithRetry(&appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Архив payload-ов обогащения: без .s3.env работаем без архива
	var archive service.Archiver
	if s3Config, err := s3.NewConfig(".s3.env"); err != nil {
		log.Printf("Payload archive disabled: %v", err)
	} else {
		s3Client, err := s3.NewClient(s3Config)
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		archive = s3Client
	}

	// Подключение к сервису аутентификации
	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}
	auth.InitClient(authConfig.AuthAddr)

	// Инициализация репозиториев
	entityRepo := repository.NewEntityRepository(db)
	curationRepo := repository.NewCurationRepository(db)
	tombstoneRepo := repository.NewTombstoneRepository(db)

	// Инициализация сервисов
	entityService := service.NewEntityService(entityRepo, tombstoneRepo)
	curationService := service.NewCurationService(curationRepo, entityRepo, tombstoneRepo)
	syncService := service.NewSyncService(entityService, curationService, tombstoneRepo, appConfig.Sync.StrictVersions)
	enrichmentService := service.NewEnrichmentService(entityRepo, archive)

	// Инициализация хендлеров
	entityHandler := handler.NewEntityHandler(entityService, curationService)
	curationHandler := handler.NewCurationHandler(curationService)
	syncHandler := handler.NewSyncHandler(syncService, enrichmentService)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.Post("/pull", syncHandler.Pull)
			r.Post("/push", syncHandler.Push)
			r.Post("/from-concierge", syncHandler.FromConcierge)
			r.Post("/from-concierge-batch", syncHandler.FromConciergeBatch)
		})

		r.Post("/entities", entityHandler.CreateEntity)
		r.Route("/entities/{id}", func(r chi.Router) {
			r.Get("/", entityHandler.GetEntity)
			r.Put("/", entityHandler.UpdateEntity)
			r.Delete("/", entityHandler.DeleteEntity)
			r.Get("/curations", entityHandler.GetEntityCurations)
		})

		r.Post("/curations", curationHandler.CreateCuration)
		r.Route("/curations/{id}", func(r chi.Router) {
			r.Get("/", curationHandler.GetCuration)
			r.Put("/", curationHandler.UpdateCuration)
			r.Delete("/", curationHandler.DeleteCuration)
		})
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Чистка устаревших надгробий жестких удалений
	tombstoneTTL := time.Duration(appConfig.Sync.TombstoneTTLHours) * time.Hour
	cleanupTicker := time.NewTicker(1 * time.Hour)
	stopCleanup := make(chan struct{})
	go func() {
		for {
			select {
			case <-cleanupTicker.C:
				ctx := context.Background()
				removed, err := syncService.CleanupTombstones(ctx, tombstoneTTL)
				if err != nil {
					log.Printf("Error during tombstone cleanup: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("Removed %d expired tombstones", removed)
				}
			case <-stopCleanup:
				cleanupTicker.Stop()
				return
			}
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	close(stopCleanup)
	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
