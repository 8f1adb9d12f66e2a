package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	request "statusable/pkg/platform/middleware/request"
	"statusable/pkg/requestcontext"
)

// RoleAdmin is the role claim required for administrative routes.
const RoleAdmin = "admin"

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents the claims we expect from the JWT validator
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	key    []byte
	issuer string
}

// NewHMACValidator constructs a validator. An empty issuer skips the iss check.
func NewHMACValidator(key []byte, issuer string) *HMACValidator {
	return &HMACValidator{key: key, issuer: issuer}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("validate token: missing subject")
	}
	return claims, nil
}

// SignToken issues an HS256 token for subject with role, valid for ttl.
func SignToken(key []byte, issuer, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAdmin rejects requests without a valid bearer token carrying the
// admin role. The token subject becomes the request's actor id.
func RequireAdmin(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			if claims.Role != RoleAdmin {
				logger.WarnContext(ctx, "forbidden - admin role required",
					"subject", claims.Subject,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Admin role required")
				return
			}

			ctx = requestcontext.WithActorID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
