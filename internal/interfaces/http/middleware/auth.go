package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/postcard/backend/internal/infrastructure/auth"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"github.com/postcard/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	TenantIDKey    = "tenant_id"
	UserIDKey      = "user_id"
	TenantIDHeader = "X-Tenant-ID"
	UserIDHeader   = "X-User-ID"
	bearerPrefix   = "Bearer "
)

// TokenVerifier resolves a bearer token to the caller
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// AuthConfig configures Auth
type AuthConfig struct {
	// Verifier validates bearer tokens when Enabled is set
	Verifier TokenVerifier
	// Enabled requires a bearer token. When false the tenant comes from the
	// X-Tenant-ID header, for local development only.
	Enabled bool
	// SkipPaths never require a caller
	SkipPaths []string
	Logger    *zap.Logger
}

// Auth resolves the calling tenant and user for every request
func Auth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		var id auth.Identity
		var err error
		if cfg.Enabled {
			id, err = fromBearer(c, cfg.Verifier)
		} else {
			id, err = fromHeaders(c)
		}
		if err != nil {
			logger.Enrich(c.Request.Context(), log).Warn("Authentication failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			abort(c, authErrorCode(err), authErrorMessage(err))
			return
		}

		c.Set(TenantIDKey, id.TenantID)
		if id.UserID != uuid.Nil {
			c.Set(UserIDKey, id.UserID)
		}
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), id.TenantID))
		c.Next()
	}
}

var (
	errMissingToken  = errors.New("missing bearer token")
	errMissingTenant = errors.New("missing X-Tenant-ID header")
	errInvalidTenant = errors.New("invalid X-Tenant-ID header")
	errInvalidUser   = errors.New("invalid X-User-ID header")
)

func fromBearer(c *gin.Context, v TokenVerifier) (auth.Identity, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return auth.Identity{}, errMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return auth.Identity{}, errMissingToken
	}
	return v.Verify(token)
}

func fromHeaders(c *gin.Context) (auth.Identity, error) {
	raw := c.GetHeader(TenantIDHeader)
	if raw == "" {
		return auth.Identity{}, errMissingTenant
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil || tenantID == uuid.Nil {
		return auth.Identity{}, errInvalidTenant
	}
	id := auth.Identity{TenantID: tenantID}
	if rawUser := c.GetHeader(UserIDHeader); rawUser != "" {
		userID, err := uuid.Parse(rawUser)
		if err != nil {
			return auth.Identity{}, errInvalidUser
		}
		id.UserID = userID
	}
	return id, nil
}

func authErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return dto.ErrCodeTokenExpired
	case errors.Is(err, errMissingToken), errors.Is(err, errMissingTenant):
		return dto.ErrCodeUnauthorized
	case errors.Is(err, errInvalidTenant), errors.Is(err, errInvalidUser):
		return dto.ErrCodeBadRequest
	default:
		return dto.ErrCodeTokenInvalid
	}
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, errMissingToken):
		return "Authentication required"
	case errors.Is(err, errMissingTenant):
		return "X-Tenant-ID header is required"
	case errors.Is(err, errInvalidTenant):
		return "X-Tenant-ID must be a UUID"
	case errors.Is(err, errInvalidUser):
		return "X-User-ID must be a UUID"
	default:
		return "Invalid token"
	}
}

// GetTenantID returns the tenant resolved by Auth
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetUserID returns the calling user, or nil when the caller is anonymous
func GetUserID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
