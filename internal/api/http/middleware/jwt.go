package middleware

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"tutor-platform/pkg/errors"
)

const identityKey = "client_id"

// LoginRequest POST /api/auth/login 请求体
type LoginRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// NewJWTAuth 以配置的 API 客户端（client_id -> secret）签发与校验 token
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration, clients map[string]string) (*jwt.HertzJWTMiddleware, error) {
	if len(key) == 0 {
		return nil, errors.New(errors.CodeValidation, "jwt key is empty")
	}
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:         "tutor",
		Key:           key,
		Timeout:       timeout,
		MaxRefresh:    maxRefresh,
		IdentityKey:   identityKey,
		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if id, ok := data.(string); ok {
				return jwt.MapClaims{identityKey: id}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			return claims[identityKey]
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req LoginRequest
			if err := c.BindJSON(&req); err != nil || req.ClientID == "" || req.ClientSecret == "" {
				return nil, jwt.ErrMissingLoginValues
			}
			secret, ok := clients[req.ClientID]
			if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(req.ClientSecret)) != 1 {
				return nil, jwt.ErrFailedAuthentication
			}
			return req.ClientID, nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			AbortWithError(ctx, c, errors.New(errors.CodeUnauthorized, message))
		},
		LoginResponse: func(ctx context.Context, c *app.RequestContext, code int, token string, expire time.Time) {
			c.JSON(consts.StatusOK, map[string]interface{}{
				"token":  token,
				"expire": expire.UTC().Format(time.RFC3339),
			})
		},
	})
}
