package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"freightflow/backend/internal/auth"
	"freightflow/backend/internal/domain"
)

const identityKey = "identity"

// IdentityAuth 身份解析中间件
type IdentityAuth struct {
	resolver *auth.Resolver
	log      *zap.Logger
}

// NewIdentityAuth 创建身份解析中间件
func NewIdentityAuth(resolver *auth.Resolver, log *zap.Logger) *IdentityAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityAuth{resolver: resolver, log: log}
}

// Require 要求请求携带可解析的身份
func (ia *IdentityAuth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := ia.resolver.Resolve(c.Request)
		if err != nil {
			ia.log.Warn("identity rejected",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			if domain.IsValidation(err) && !errors.Is(err, domain.ErrUnauthenticated) {
				abort(c, http.StatusBadRequest, err.Error())
				return
			}
			abort(c, http.StatusUnauthorized, "需要有效的身份凭证")
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom 读取中间件写入的身份
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := value.(auth.Identity)
	return id, ok
}
