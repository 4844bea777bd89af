package api

import (
	"net/http"
	"os"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
	"github.com/nexalabs/nexa-server/internal/auth"
	"github.com/nexalabs/nexa-server/internal/websocket"
)

// Server bundles the HTTP surface's dependencies.
type Server struct {
	hub       *websocket.Hub
	signer    *auth.Signer
	directory repositories.UserDirectory
	store     repositories.ConversationStore
	inquiries repositories.InquiryLog
	logger    *zap.Logger

	// adminMobile is the mobile identifier granted the ADMIN role.
	adminMobile string

	configMu sync.RWMutex
	config   entities.AppConfig
}

// NewServer creates the HTTP API server.
func NewServer(
	hub *websocket.Hub,
	signer *auth.Signer,
	directory repositories.UserDirectory,
	store repositories.ConversationStore,
	inquiries repositories.InquiryLog,
	logger *zap.Logger,
) *Server {
	return &Server{
		hub:         hub,
		signer:      signer,
		directory:   directory,
		store:       store,
		inquiries:   inquiries,
		logger:      logger,
		adminMobile: os.Getenv("ADMIN_MOBILE"),
		config:      entities.DefaultAppConfig(),
	}
}

// InitRoutes initializes all API routes.
func (s *Server) InitRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "nexa-server",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/session/login", s.login)

	v1.GET("/config", s.getConfig)
	v1.PUT("/config", s.requireAdmin(s.updateConfig))

	admin := v1.Group("/admin")
	admin.GET("/users", s.requireAdmin(s.listUsers))
	admin.PUT("/users/:mobile/blocked", s.requireAdmin(s.setBlocked))
	admin.GET("/inquiries", s.requireAdmin(s.listInquiries))
	admin.DELETE("/memory", s.requireAdmin(s.purgeAdminMemory))

	e.GET("/ws", s.websocketWithAuth)
}

// login authenticates an identity and issues a session token. There is no
// password; possession of the admin mobile number grants the admin role,
// matching the kiosk-style deployment this serves.
func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.DisplayName == "" || req.Mobile == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Display name and mobile are required",
		})
	}

	ctx := c.Request().Context()
	identity := entities.UserIdentity{
		DisplayName: req.DisplayName,
		Mobile:      req.Mobile,
		Role:        entities.RoleStandard,
	}
	if s.adminMobile != "" && req.Mobile == s.adminMobile {
		identity.Role = entities.RoleAdmin
	}

	if identity.Role == entities.RoleStandard {
		blocked, err := s.directory.IsBlocked(ctx, identity.Mobile)
		if err != nil {
			s.logger.Error("Failed to check block status", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Could not verify account status",
			})
		}
		if blocked {
			s.logger.Warn("Blocked user refused", zap.String("mobile", identity.Mobile))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "blocked",
				Message: "This account has been blocked",
			})
		}

		if err := s.directory.Upsert(ctx, entities.StoredUser{
			DisplayName: identity.DisplayName,
			Mobile:      identity.Mobile,
		}); err != nil {
			s.logger.Error("Failed to record user login", zap.Error(err))
		}
	}

	token, expiresAt, err := s.signer.GenerateSessionToken(identity)
	if err != nil {
		s.logger.Error("Failed to generate session token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	s.logger.Info("Identity authenticated",
		zap.String("mobile", identity.Mobile),
		zap.String("role", string(identity.Role)))

	return c.JSON(http.StatusOK, LoginResponse{
		Token:       token,
		ExpiresAt:   expiresAt,
		DisplayName: identity.DisplayName,
		Role:        string(identity.Role),
	})
}

func (s *Server) getConfig(c echo.Context) error {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return c.JSON(http.StatusOK, s.config)
}

func (s *Server) updateConfig(c echo.Context, _ entities.UserIdentity) error {
	var config entities.AppConfig
	if err := c.Bind(&config); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid configuration format",
		})
	}
	if err := config.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_config",
			Message: err.Error(),
		})
	}

	s.configMu.Lock()
	s.config = config
	s.configMu.Unlock()
	return c.JSON(http.StatusOK, config)
}

func (s *Server) listUsers(c echo.Context, _ entities.UserIdentity) error {
	users, err := s.directory.List(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to list users", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Could not list users",
		})
	}
	return c.JSON(http.StatusOK, users)
}

func (s *Server) setBlocked(c echo.Context, _ entities.UserIdentity) error {
	var req SetBlockedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	mobile := c.Param("mobile")
	if err := s.directory.SetBlocked(c.Request().Context(), mobile, req.Blocked); err != nil {
		s.logger.Warn("Failed to update block flag",
			zap.String("mobile", mobile), zap.Error(err))
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "unknown_user",
			Message: "No such user",
		})
	}
	return c.JSON(http.StatusOK, map[string]bool{"blocked": req.Blocked})
}

func (s *Server) listInquiries(c echo.Context, _ entities.UserIdentity) error {
	inquiries, err := s.inquiries.Inquiries(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to list inquiries", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Could not list inquiries",
		})
	}
	return c.JSON(http.StatusOK, inquiries)
}

func (s *Server) purgeAdminMemory(c echo.Context, _ entities.UserIdentity) error {
	if err := s.store.PurgeAdminHistory(c.Request().Context()); err != nil {
		s.logger.Error("Failed to purge admin memory", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Could not purge memory",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

// requireAdmin wraps a handler with admin token validation.
func (s *Server) requireAdmin(next func(echo.Context, entities.UserIdentity) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := s.authenticate(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired session token",
			})
		}
		if !identity.IsAdmin() {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "Admin access required",
			})
		}
		return next(c, *identity)
	}
}

// authenticate extracts and validates the bearer token.
func (s *Server) authenticate(c echo.Context) (*entities.UserIdentity, error) {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		// Browsers cannot set headers on websocket upgrades.
		token = c.QueryParam("token")
	}
	if token == "" {
		return nil, echo.ErrUnauthorized
	}
	return s.signer.ValidateToken(token)
}

// websocketWithAuth upgrades the connection for an authenticated identity.
func (s *Server) websocketWithAuth(c echo.Context) error {
	identity, err := s.authenticate(c)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Valid session token required",
		})
	}

	s.logger.Info("WebSocket connection authenticated",
		zap.String("mobile", identity.Mobile),
		zap.String("role", string(identity.Role)))

	return websocket.HandleWebSocket(s.hub, c, *identity, s.logger)
}
