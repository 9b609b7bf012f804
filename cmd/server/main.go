package main

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/api/handlers"
	"github.com/postbridge/postbridge/internal/api/middleware"
	job "github.com/postbridge/postbridge/internal/jobs"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/queue"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	registry := platform.Registry{
		platform.YouTube: platform.NewYouTubeClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI),
		platform.TikTok:  platform.NewTikTokClient(cfg.TiktokClientKey, cfg.TiktokClientSecret, cfg.TiktokRedirectURI),
	}

	socialAccountRepo := repository.NewSocialAccountRepository(db)
	socialPostRepo := repository.NewSocialPostRepository(db)

	r2Service := service.NewR2Service(*cfg)
	tokenService := service.NewTokenService(*cfg, socialAccountRepo, registry)
	connectorService := service.NewConnectorService(*cfg, socialAccountRepo, registry)
	uploadService := service.NewUploadService(*cfg, socialPostRepo, socialAccountRepo, registry, r2Service)

	enqueuer := queue.NewAsynqEnqueuer(client, cfg.Queue.MaxRetry, cfg.Queue.PublishTimeout)
	publisher := queue.NewPublisher(socialPostRepo, enqueuer)
	worker := queue.NewWorker(*cfg, socialPostRepo, tokenService, registry, r2Service)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	social := handlers.NewSocialHandler(connectorService, uploadService, publisher, *cfg)

	// OAuth callback is authenticated by the signed state token instead of
	// the session cookie.
	app.Get("/social/:platform/callback", social.Callback)

	api := app.Group("/social")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/:platform/connect", social.Connect)
	api.Post("/disconnect/:accountId", social.Disconnect)
	api.Get("/accounts", social.ListAccounts)
	api.Post("/upload-video/:platform", social.UploadVideo)
	api.Post("/publish", social.Publish)
	api.Get("/posts", social.ListPosts)
	api.Get("/posts/:id", social.GetPost)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, tokenService)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(float64(cfg.Queue.BackoffBase) * math.Pow(2, float64(n)))
				if delay > cfg.Queue.BackoffCap {
					delay = cfg.Queue.BackoffCap
				}
				return delay
			},
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeVideoPublish, worker.HandleVideoPublishTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
