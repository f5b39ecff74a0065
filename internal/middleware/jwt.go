package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pulseflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "pulseflow"

var errMissingToken = errors.New("authorization header missing")

// OperatorClaims are issued by the surrounding admin layer and verified here.
type OperatorClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for op valid for ttl.
func SignToken(secret []byte, op service.OperatorInfo, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		UserID:   op.UserID,
		Username: op.Name,
		Role:     op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// JWTMiddleware authenticates the caller and puts an OperatorInfo on the
// request context. With devPass set, an X-Dev-Pass: true header stands in
// for an admin token.
func JWTMiddleware(secret []byte, devPass bool) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		if devPass && c.GetHeader("X-Dev-Pass") == "true" {
			setOperator(c, &service.OperatorInfo{UserID: "0", Name: "dev-admin", Role: service.RoleAdmin})
			c.Next()
			return
		}

		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims := &OperatorClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			return
		}

		setOperator(c, &service.OperatorInfo{UserID: claims.UserID, Name: claims.Username, Role: claims.Role})
		c.Next()
	}
}

// RequireAdmin rejects callers whose token does not carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !service.GetOperatorInfo(c.Request.Context()).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func setOperator(c *gin.Context, op *service.OperatorInfo) {
	c.Request = c.Request.WithContext(service.WithOperator(c.Request.Context(), op))
	c.Set(operatorKey, op.Name)
}
