package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/auth"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
	"github.com/mehtapradnyatama/appsampah/internal/usecase"
)

// MaxUploadSize is the default request body limit for uploads.
const MaxUploadSize = 16 << 20

// UserService is the account use case used by the register and login pages.
type UserService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*repository.User, error)
	Login(ctx context.Context, email, password string) (*repository.User, error)
}

// ClassificationService is the classification use case behind the classify,
// dashboard and API routes.
type ClassificationService interface {
	Classify(ctx context.Context, userID, filename string, src io.Reader) (*usecase.ClassificationResult, error)
	History(ctx context.Context, userID string) (*usecase.History, error)
	Stats(ctx context.Context, userID string) (*usecase.Stats, error)
	ModelLoaded() bool
}

// Options configures the HTTP surface.
type Options struct {
	UploadDir      string
	MaxUploadBytes int64
	SecureCookie   bool
	// Labels are listed on the about page.
	Labels []string
}

// Handler serves the HTML pages and the JSON API.
type Handler struct {
	users           UserService
	classifications ClassificationService
	tokens          *auth.TokenIssuer
	opts            Options
	logger          *zap.Logger
}

// New constructs the handler set.
func New(users UserService, classifications ClassificationService, tokens *auth.TokenIssuer, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = MaxUploadSize
	}
	return &Handler{
		users:           users,
		classifications: classifications,
		tokens:          tokens,
		opts:            opts,
		logger:          logger.Named("http"),
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.MaxMultipartMemory = h.opts.MaxUploadBytes
	router.SetHTMLTemplate(mustParseTemplates())
	router.Use(RequestID(), AccessLog(h.logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model_loaded": h.classifications.ModelLoaded()})
	})
	if h.opts.UploadDir != "" {
		router.Static("/uploads", h.opts.UploadDir)
	}

	optional := auth.OptionalJWTMiddleware(h.tokens)
	requireLogin := auth.JWTMiddleware(h.tokens, h.redirectToLogin)

	router.GET("/", optional, h.index)
	router.GET("/about", optional, h.about)
	router.GET("/register", optional, h.registerForm)
	router.POST("/register", optional, h.register)
	router.GET("/login", optional, h.loginForm)
	router.POST("/login", optional, h.login)
	router.GET("/logout", h.logout)
	router.GET("/classify", requireLogin, h.classifyForm)
	router.POST("/classify", requireLogin, h.classify)
	router.GET("/dashboard", requireLogin, h.dashboard)

	api := router.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders:   []string{"Content-Length", requestIDHeader},
		MaxAge:          12 * time.Hour,
	}))
	api.Use(auth.JWTMiddleware(h.tokens, notAuthenticated))
	api.GET("/stats", h.apiStats)
	api.POST("/classify", h.apiClassify)
}

func notAuthenticated(c *gin.Context, _ error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
}
