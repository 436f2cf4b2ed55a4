// Package auth 从 HTTP 请求中解析玩家身份。
// 注册和登录由外部服务负责，这里只校验它签发的 HMAC JWT。
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/types"
)

const (
	DefaultCookieName = "token"
	identityKey       = "identity"
)

// ErrInvalidToken 令牌缺失、过期或签名无效
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Resolver 身份解析器
type Resolver struct {
	secret     []byte
	cookieName string
	clock      clockwork.Clock
}

// NewResolver 创建身份解析器
func NewResolver(secret, cookieName string, clock clockwork.Clock) *Resolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{secret: []byte(secret), cookieName: cookieName, clock: clock}
}

// Issue 签发令牌
func (r *Resolver) Issue(id types.Identity, ttl time.Duration) (string, error) {
	now := r.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   id.ID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(r.secret)
}

// Verify 校验令牌并返回身份
func (r *Resolver) Verify(tokenString string) (types.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	}, jwt.WithTimeFunc(r.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return types.Identity{}, ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.UserID == "" || c.Username == "" {
		return types.Identity{}, ErrInvalidToken
	}
	return types.Identity{ID: c.UserID, Username: c.Username}, nil
}

// Resolve 依次从 cookie、Authorization 头和 token 查询参数读取令牌
func (r *Resolver) Resolve(req *http.Request) (types.Identity, error) {
	token := tokenFromRequest(req, r.cookieName)
	if token == "" {
		return types.Identity{}, ErrInvalidToken
	}
	return r.Verify(token)
}

func tokenFromRequest(req *http.Request, cookieName string) string {
	if c, err := req.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := req.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return req.URL.Query().Get("token")
}

// RequireIdentity 要求请求携带有效身份
func (r *Resolver) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := r.Resolve(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    apperrors.ErrUnauthorized.Code,
				"message": protocol.ErrorMessages[protocol.ErrCodeUnauthorized],
			})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom 读取中间件写入的身份
func IdentityFrom(c *gin.Context) (types.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return types.Identity{}, false
	}
	id, ok := v.(types.Identity)
	return id, ok
}
