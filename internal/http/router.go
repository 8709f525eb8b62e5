// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes tracing, correlation IDs,
// logging, panic recovery, metrics, compression, CORS, security headers, and
// rate limiting, then mounts the versioned public API.
//
// Middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics, gzip
//  7. Rate limiter (per user/IP)
//  8. CORS and security headers
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/agent"
	"github.com/hai-app/go-study-backend/internal/canvas"
	"github.com/hai-app/go-study-backend/internal/config"
	"github.com/hai-app/go-study-backend/internal/gcal"
	"github.com/hai-app/go-study-backend/internal/http/handlers"
	"github.com/hai-app/go-study-backend/internal/http/middleware"
	"github.com/hai-app/go-study-backend/internal/llm"
	"github.com/hai-app/go-study-backend/internal/services"
	"github.com/hai-app/go-study-backend/internal/tokens"
)

// RegisterRoutes attaches middleware and endpoints to the engine, building
// the full dependency graph: token store, provider adapters, model client,
// tool registry, assembler, services, handlers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) error {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: adapters and stores first, then the agent, then
	// the services the handlers consume.
	refresher := tokens.NewGoogleRefresher(cfg.Google.TokenURL, cfg.Google.ClientID, cfg.Google.ClientSecret)
	store := tokens.NewStore(db, refresher, cfg.TokenCacheSkew)
	canvasClient := canvas.New(cfg.Canvas.BaseURL)
	gcalClient := gcal.New(cfg.Google.CalendarURL)

	registry, err := agent.BuildRegistry(agent.Deps{
		DB:           db,
		Tokens:       store,
		Canvas:       canvasClient,
		GCal:         gcalClient,
		UpcomingDays: cfg.UpcomingDays,
	})
	if err != nil {
		return err
	}

	model := llm.NewClient(llm.Config{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		Timeout: cfg.Model.Timeout,
	})

	assembler := &agent.Assembler{
		DB:              db,
		Model:           model,
		Registry:        registry,
		Sessions:        agent.NewSessions(),
		MaxToolRounds:   cfg.Model.MaxToolRounds,
		HistoryMessages: cfg.HistoryMessages,
		MaxPromptRunes:  cfg.MaxPromptRunes,
	}

	roomSvc := services.NewChatroomService(db)
	roomSvc.NameLocale = language.English
	chatSvc := services.NewChatService(roomSvc, assembler)
	taskSvc := services.NewTaskService(db)
	taskSvc.Model = model
	courseSvc := services.NewCourseService(db, canvasClient, store)
	integrationSvc := services.NewIntegrationService(db, store, canvasClient)

	h := handlers.New(roomSvc, chatSvc, taskSvc, courseSvc, integrationSvc)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Chatrooms and agent turns
		api.POST("/chatrooms", h.CreateChatroom)
		api.GET("/chatrooms", h.ListChatrooms)
		api.GET("/chatrooms/:id", h.GetChatroom)
		api.PUT("/chatrooms/:id/name", h.RenameChatroom)
		api.DELETE("/chatrooms/:id", h.DeleteChatroom)
		api.GET("/chatrooms/:id/messages", h.ListChatroomMessages)
		api.POST("/chatrooms/:id/messages", h.PostChatroomMessage)

		// Tasks
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks", h.ListTasks)
		api.GET("/tasks/:id", h.GetTask)
		api.POST("/tasks/:id/subtasks", h.GenerateSubtasks)
		api.GET("/tasks/:id/subtasks", h.ListSubtasks)

		// Courses
		api.POST("/courses/sync", h.SyncCourses)
		api.GET("/courses", h.ListCourses)
		api.GET("/courses/:id", h.GetCourse)
		api.GET("/courses/:id/materials", h.ListCourseMaterials)
		api.POST("/courses/:id/materials", h.AddCourseMaterial)

		// Integrations
		api.POST("/integrations/canvas", h.ConnectCanvas)
		api.POST("/integrations/google", h.ConnectGoogle)
		api.GET("/integrations", h.IntegrationStatus)
		api.DELETE("/integrations/:provider", h.DisconnectIntegration)
	}
	return nil
}

// limitBody caps the request body size using http.MaxBytesReader; reads past
// the cap error downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
