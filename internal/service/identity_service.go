package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserLookup 用户名到用户 id 的解析
type UserLookup interface {
	FindIDByUsername(ctx context.Context, username string) (string, error)
}

// IdentityService 将请求身份解析为统计归属
type IdentityService struct {
	// Users 为空时（未启用关系库）仅凭令牌中的 user_id 识别用户
	Users UserLookup
}

func NewIdentityService(users UserLookup) *IdentityService {
	return &IdentityService{Users: users}
}

// ResolveScope 无令牌归入全局桶；令牌只带用户名时查询用户表，查无此人同样归入全局桶
func (s *IdentityService) ResolveScope(ctx context.Context, claims *util.Claims) (model.OwnerScope, error) {
	if claims == nil {
		return model.GlobalScope(), nil
	}
	if claims.UserID != "" {
		return ParseOwnerScope(claims.UserID)
	}
	if claims.Username == "" || s.Users == nil {
		return model.GlobalScope(), nil
	}

	id, err := s.Users.FindIDByUsername(ctx, claims.Username)
	if errors.Is(err, util.ErrUserNotFound) {
		logger.Log.Info("Unknown username, using global scope", zap.String("username", claims.Username))
		return model.GlobalScope(), nil
	}
	if err != nil {
		return model.OwnerScope{}, err
	}
	return ParseOwnerScope(id)
}

// ParseOwnerScope 空字符串表示全局桶，其余必须是合法 UUID
func ParseOwnerScope(raw string) (model.OwnerScope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.GlobalScope(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return model.OwnerScope{}, fmt.Errorf("%w: %q", util.ErrInvalidOwnerID, raw)
	}
	return model.UserScope(id), nil
}
