// Package auth 解析调用方身份（Bearer JWT 或开发模式下的 X-User-* 请求头）。
package auth

import (
	"errors"
	"net/http"
	"strings"

	"freightflow/backend/internal/auth/jwt"
	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
)

// 开发模式下接受的身份请求头
const (
	HeaderUserID   = "X-User-Id"
	HeaderTenantID = "X-Tenant-Id"
	HeaderUserRole = "X-User-Role"
)

// Identity 调用方身份
type Identity struct {
	UserID   string
	TenantID string
	Role     domain.Role
}

// Scope 按请求的角色得到数据范围
//
// requested 为空时使用身份自带的角色；与身份角色不一致时返回 domain.ErrForbiddenRole。
func (id Identity) Scope(requested string) (domain.Scope, error) {
	role := id.Role
	if strings.TrimSpace(requested) != "" {
		parsed, err := domain.ParseRole(requested)
		if err != nil {
			return domain.Scope{}, err
		}
		if id.Role != "" && parsed != id.Role {
			return domain.Scope{}, domain.ErrForbiddenRole
		}
		role = parsed
	}
	scope := domain.Scope{Role: role, UserID: id.UserID, TenantID: id.TenantID}
	if err := scope.Validate(); err != nil {
		return domain.Scope{}, err
	}
	return scope, nil
}

// Resolver 从请求中解析身份
type Resolver struct {
	tokens   *jwt.Manager
	required bool
}

// NewResolver 创建身份解析器
func NewResolver(cfg config.AuthConfig) *Resolver {
	return &Resolver{
		tokens:   jwt.NewManager(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL),
		required: cfg.Required,
	}
}

// Tokens 返回令牌管理器
func (r *Resolver) Tokens() *jwt.Manager {
	return r.tokens
}

// Resolve 优先使用 Bearer 令牌（或 token 查询参数），未强制认证时回退到请求头
func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	if token := bearerToken(req); token != "" {
		claims, err := r.tokens.ValidateToken(token)
		if err != nil {
			return Identity{}, errors.Join(domain.ErrUnauthenticated, err)
		}
		role, err := domain.ParseRole(claims.Role)
		if err != nil {
			return Identity{}, errors.Join(domain.ErrUnauthenticated, err)
		}
		return Identity{UserID: claims.Subject, TenantID: claims.TenantID, Role: role}, nil
	}

	if r.required {
		return Identity{}, domain.ErrUnauthenticated
	}

	id := Identity{
		UserID:   strings.TrimSpace(req.Header.Get(HeaderUserID)),
		TenantID: strings.TrimSpace(req.Header.Get(HeaderTenantID)),
	}
	if id.UserID == "" || id.TenantID == "" {
		return Identity{}, domain.ErrUnauthenticated
	}
	if raw := req.Header.Get(HeaderUserRole); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			return Identity{}, err
		}
		id.Role = role
	}
	return id, nil
}

// bearerToken 读取 Authorization 头，WebSocket 握手时读取 token 查询参数
func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return req.URL.Query().Get("token")
}
