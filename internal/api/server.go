// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/service"
	"github.com/estrella/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// UserServiceInterface defines the interface for profile operations
type UserServiceInterface interface {
	CreateUser(ctx context.Context, input *service.CreateUserInput) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, update *models.ProfileUpdate) (*models.User, error)
	AddStar(ctx context.Context, userID string) (*models.User, error)
	ListVisible(ctx context.Context, filter models.MapFilter) ([]*models.User, error)
	QuotaStatus(ctx context.Context, userID string) (*models.QuotaStatus, error)
	Activity(ctx context.Context, userID string, from, to types.Day) ([]models.DailyActivity, error)
}

// MessagingServiceInterface defines the interface for conversation and message operations
type MessagingServiceInterface interface {
	SendMessage(ctx context.Context, input *service.SendMessageInput) (*models.Message, error)
	SendBeer(ctx context.Context, senderID, recipientID string) (*service.BeerResult, error)
	ResolveConversation(ctx context.Context, userID, otherUserID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID, userID string, limit int) ([]*models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
	ListBeers(ctx context.Context, userID string) ([]*models.Beer, error)
}

// PromoServiceInterface defines the interface for promo code operations
type PromoServiceInterface interface {
	RedeemPromoCode(ctx context.Context, userID, code string) (*service.RedeemResult, error)
	ListRedemptions(ctx context.Context, userID string) ([]*models.PromoRedemption, error)
}

// HealthChecker is a dependency reported by /health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	handler          http.Handler
	httpServer       *http.Server
	userService      UserServiceInterface
	messagingService MessagingServiceInterface
	promoService     PromoServiceInterface
	healthChecks     map[string]HealthChecker
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int // Per caller; zero disables rate limiting
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	userService UserServiceInterface,
	messagingService MessagingServiceInterface,
	promoService PromoServiceInterface,
	healthChecks map[string]HealthChecker,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		userService:      userService,
		messagingService: messagingService,
		promoService:     promoService,
		healthChecks:     healthChecks,
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	if s.config.RequestsPerSecond > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)))
	}

	s.setupRoutes()

	// CORS wraps the router so preflight requests are answered before route matching
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// User endpoints
	api.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/users", s.handleListVisibleUsers).Methods("GET")
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}", s.handleUpdateProfile).Methods("PATCH")
	api.HandleFunc("/users/{id}/stars", s.handleAddStar).Methods("POST")
	api.HandleFunc("/users/{id}/quota", s.handleGetQuota).Methods("GET")
	api.HandleFunc("/users/{id}/activity", s.handleGetActivity).Methods("GET")

	// Conversation endpoints
	api.HandleFunc("/conversations", s.handleResolveConversation).Methods("POST")
	api.HandleFunc("/conversations", s.handleListConversations).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods("GET")
	api.HandleFunc("/conversations/{id}/read", s.handleMarkRead).Methods("POST")

	// Message and bonus endpoints
	api.HandleFunc("/messages", s.handleSendMessage).Methods("POST")
	api.HandleFunc("/beers", s.handleSendBeer).Methods("POST")
	api.HandleFunc("/beers", s.handleListBeers).Methods("GET")
	api.HandleFunc("/promo-codes/redeem", s.handleRedeemPromoCode).Methods("POST")
	api.HandleFunc("/promo-codes", s.handleListRedemptions).Methods("GET")
}

// handleHealth pings every registered dependency
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.healthChecks[name].Ping(ctx); err != nil {
			logging.FromContext(r.Context()).WithError(err).WithField("dependency", name).Warn("Health check failed")
			checks[name] = "unavailable"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	respondJSON(w, statusCode, map[string]interface{}{
		"status":  status,
		"service": "estrella",
		"checks":  checks,
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
