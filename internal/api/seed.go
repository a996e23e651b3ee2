package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/model"
)

// SeedAdmin 确保配置里指定的管理员账号存在。
//
// 账号已存在时仅提升角色，未配置管理员时直接跳过。
// 管理员仍需走确认码流程获取 Token。
func (s *Server) SeedAdmin(ctx context.Context) error {
	email := s.cfg.App.AdminEmail
	username := s.cfg.App.AdminName
	if email == "" || username == "" {
		return nil
	}

	user, err := s.users.ByUsername(ctx, username)
	if err == nil {
		if user.Role == model.RoleAdmin && user.IsStaff {
			return nil
		}
		user.Role = model.RoleAdmin
		user.IsStaff = true
		if err := s.users.Save(ctx, user); err != nil {
			return err
		}
		s.logger.Info("admin role granted", slog.String("username", username))
		return nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return err
	}

	admin := &model.User{
		Email:    email,
		Username: username,
		Role:     model.RoleAdmin,
		IsStaff:  true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("admin account created", slog.String("username", username))
	return nil
}
