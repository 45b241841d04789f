package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"alfredoptarigan/resume-coach/internal/config"
	"alfredoptarigan/resume-coach/internal/handlers"
	"alfredoptarigan/resume-coach/internal/repositories"
	"alfredoptarigan/resume-coach/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Println("✅ Config loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	jobRepo := repositories.NewGenerationJobRepository(db)
	draftRepo := repositories.NewDraftRepository(db)
	log.Println("✅ Repositories initialized successfully")

	storageService, err := services.NewStorageService(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Failed to initialize attachment storage: %v", err)
	}
	log.Printf("✅ Attachment storage ready (%s)\n", cfg.Storage.Driver)

	// A missing key is not fatal; every model call reports it instead.
	geminiService, err := services.NewGeminiService(ctx, cfg.Gemini)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini AI: %v", err)
	}
	if cfg.Gemini.APIKey == "" {
		log.Println("⚠️  GEMINI_API_KEY is not set, model requests will fail")
	} else {
		log.Println("✅ Gemini AI initialized successfully")
	}

	knowledge := services.NewNoopKnowledgeBase()
	if cfg.Qdrant.URL != "" {
		qdrantService, err := services.NewQdrantService(
			cfg.Qdrant.URL,
			cfg.Qdrant.APIKey,
			cfg.Qdrant.Collection,
		)
		if err != nil {
			log.Fatalf("❌ Failed to initialize Qdrant: %v", err)
		}
		defer qdrantService.Close()

		if err := qdrantService.InitCollection(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize Qdrant collection: %v", err)
		}
		knowledge = services.NewKnowledgeBase(geminiService, qdrantService, services.NewTextChunker())
		log.Println("✅ Qdrant initialized successfully")
	}

	notifier := services.NewNoopNotifier()
	if cfg.RabbitMQ.URL != "" {
		notifier, err = services.NewAMQPNotifier(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatalf("❌ Failed to connect to RabbitMQ: %v", err)
		}
		defer notifier.Close()
		log.Println("✅ RabbitMQ notifier initialized")
	}

	promptBuilder := services.NewPromptBuilder(cfg.Gemini.ResumeLanguage)
	ingestion := services.NewIngestionService(services.NewDocumentParser())
	generator := services.NewResumeGenerator(geminiService, ingestion, promptBuilder)

	interviewService := services.NewInterviewService(geminiService, knowledge, promptBuilder, services.InterviewOptions{
		SessionTTL:    cfg.Interview.SessionTTL,
		IdleTimeout:   cfg.Interview.IdleTimeout,
		SweepInterval: cfg.Interview.SweepInterval,
	})
	liveManager := services.NewLiveSessionManager(geminiService, knowledge, promptBuilder, services.LiveOptions{
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		FrameSize:        cfg.Audio.FrameSize,
		Voice:            cfg.Audio.Voice,
		Transcription:    cfg.Audio.Transcription,
	})
	log.Println("✅ Services initialized successfully")

	worker := services.NewWorker(jobRepo, draftRepo, generator, storageService, notifier, cfg.Worker)
	worker.Start(ctx)
	interviewService.Start(ctx)

	// Initialize Handlers
	resumeHandler := handlers.NewResumeHandler(jobRepo, storageService, worker, cfg.Storage.MaxFileSize)
	draftHandler := handlers.NewDraftHandler(draftRepo)
	interviewHandler := handlers.NewInterviewHandler(interviewService)
	liveHandler := handlers.NewLiveHandler(liveManager, interviewService, cfg.Audio.InputSampleRate)
	log.Println("✅ Handlers initialized")

	app := fiber.New(fiber.Config{
		AppName:      "Resume Coach API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		BodyLimit:    int(cfg.Storage.MaxFileSize) * 4,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/resumes", resumeHandler.HandleGenerate)
	api.Get("/resumes/:id", resumeHandler.HandleGetResult)

	api.Put("/drafts/:sessionId", draftHandler.HandleSave)
	api.Get("/drafts/:sessionId", draftHandler.HandleGet)
	api.Delete("/drafts/:sessionId", draftHandler.HandleDelete)

	api.Post("/interviews", interviewHandler.HandleStart)
	api.Post("/interviews/:id/messages", interviewHandler.HandleMessage)
	api.Post("/interviews/:id/end", interviewHandler.HandleEnd)

	api.Use("/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/live", websocket.New(liveHandler.HandleLive))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Resume Coach API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/resumes",
				"GET /api/v1/resumes/:id",
				"PUT /api/v1/drafts/:sessionId",
				"GET /api/v1/drafts/:sessionId",
				"DELETE /api/v1/drafts/:sessionId",
				"POST /api/v1/interviews",
				"POST /api/v1/interviews/:id/messages",
				"POST /api/v1/interviews/:id/end",
				"GET /api/v1/live (websocket)",
			},
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("\n🛑 Shutting down server...")
		worker.Stop()
		interviewService.Stop()
		cancel()
		if err := app.Shutdown(); err != nil {
			log.Printf("❌ Server forced to shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("🚀 Server starting on %s\n", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	status, code := handlers.StatusFor(err)

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
