package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/techpack/backend/internal/infrastructure/logger"
)

// Identity header names
const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// IdentityConfig holds the settings used to derive the caller identity
type IdentityConfig struct {
	// Secret verifies HS256 bearer tokens. Empty disables token parsing.
	Secret string
	// Issuer, when set, must match the token's iss claim
	Issuer string
	Logger *zap.Logger
}

var errMissingToken = errors.New("missing bearer token")

// Identity resolves who is calling, for budget keying only. A valid bearer
// token yields its sub claim, anything else keys the caller by client IP.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(c *gin.Context) {
		subject, err := bearerSubject(c, parser, cfg.Secret)
		if err != nil {
			if !errors.Is(err, errMissingToken) {
				log.Debug("Ignoring invalid bearer token", zap.Error(err))
			}
			subject = "ip:" + c.ClientIP()
		}

		c.Set(SubjectKey, subject)
		c.Request = c.Request.WithContext(logger.WithSubject(c.Request.Context(), subject))
		c.Next()
	}
}

func bearerSubject(c *gin.Context, parser *jwt.Parser, secret string) (string, error) {
	header := c.GetHeader(AuthHeaderKey)
	if secret == "" || !strings.HasPrefix(header, BearerPrefix) {
		return "", errMissingToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if raw == "" {
		return "", errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return "sub:" + claims.Subject, nil
}

// GetSubject returns the resolved caller identity
func GetSubject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}
