package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/api/middleware"
	"github.com/Kashikuroni/api-yamdb/internal/model"

	"github.com/gin-gonic/gin"
)

type userResponse struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
	Role      string `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bio:       u.Bio,
		Role:      u.Role.String(),
	}
}

type createUserRequest struct {
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Bio       string  `json:"bio"`
	Role      *string `json:"role"`
	IsStaff   bool    `json:"is_staff"`
}

type updateUserRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Role      *string `json:"role"`
	IsStaff   *bool   `json:"is_staff"`
}

// handleListUsers 返回用户列表（仅管理员）。
//
// GET /api/v1/users?limit=20&offset=0
func (s *Server) handleListUsers(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanManageUsers(id) {
		abortDenied(c, id)
		return
	}

	limit, offset := s.pageParams(c)
	users, total, err := s.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.logError("list users failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	results := make([]userResponse, 0, len(users))
	for i := range users {
		results = append(results, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

// handleCreateUser 管理员创建用户（可直接指定角色）。
//
// POST /api/v1/users
func (s *Server) handleCreateUser(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanManageUsers(id) {
		abortDenied(c, id)
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 与注册接口同样的归一化，否则大小写差异会绕过唯一性检查
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	fieldErrs := map[string][]string{}
	if msgs := model.ValidateEmail(req.Email); len(msgs) > 0 {
		fieldErrs["email"] = msgs
	}
	if msgs := model.ValidateUsername(req.Username); len(msgs) > 0 {
		fieldErrs["username"] = msgs
	}
	role := model.RoleUser
	if req.Role != nil {
		parsed, err := model.ParseRole(*req.Role)
		if err != nil {
			fieldErrs["role"] = []string{"must be one of: user, moderator, admin"}
		} else {
			role = parsed
		}
	}
	if len(req.FirstName) > model.MaxNameLen {
		fieldErrs["first_name"] = []string{"must be at most 150 characters"}
	}
	if len(req.LastName) > model.MaxNameLen {
		fieldErrs["last_name"] = []string{"must be at most 150 characters"}
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()
	emailTaken, usernameTaken, err := s.users.FindConflicts(ctx, req.Email, req.Username)
	if err != nil {
		s.logError("query user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}
	if emailTaken || usernameTaken {
		conflict := map[string][]string{}
		if emailTaken {
			conflict["email"] = []string{"already in use"}
		}
		if usernameTaken {
			conflict["username"] = []string{"already in use"}
		}
		c.JSON(http.StatusConflict, conflict)
		return
	}

	user := &model.User{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Role:      role,
		IsStaff:   req.IsStaff,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logError("create user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// handleGetUser 返回用户信息。"me" 返回当前用户，其余仅管理员可查。
//
// GET /api/v1/users/:username
func (s *Server) handleGetUser(c *gin.Context) {
	id := middleware.Identity(c)
	username := c.Param("username")

	if username == model.ReservedUsername {
		if id == nil {
			abortDenied(c, id)
			return
		}
		username = id.Username
	} else if !access.CanManageUsers(id) {
		abortDenied(c, id)
		return
	}

	user, err := s.users.ByUsername(c.Request.Context(), username)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		s.logError("query user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

// handlePatchUser 更新用户。"me" 为自助更新（角色不可改），其余仅管理员。
//
// PATCH /api/v1/users/:username
func (s *Server) handlePatchUser(c *gin.Context) {
	id := middleware.Identity(c)
	username := c.Param("username")

	self := username == model.ReservedUsername
	if self {
		if id == nil {
			abortDenied(c, id)
			return
		}
		username = id.Username
	} else if !access.CanManageUsers(id) {
		abortDenied(c, id)
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 自助接口不允许动角色和后台标记
	if self && (req.Role != nil || req.IsStaff != nil) {
		c.JSON(http.StatusBadRequest, map[string][]string{"role": {"not editable"}})
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.ByUsername(ctx, username)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		s.logError("query user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	fieldErrs := map[string][]string{}
	if req.Email != nil {
		normalized := strings.TrimSpace(strings.ToLower(*req.Email))
		req.Email = &normalized
		if msgs := model.ValidateEmail(*req.Email); len(msgs) > 0 {
			fieldErrs["email"] = msgs
		}
	}
	if req.FirstName != nil && len(*req.FirstName) > model.MaxNameLen {
		fieldErrs["first_name"] = []string{"must be at most 150 characters"}
	}
	if req.LastName != nil && len(*req.LastName) > model.MaxNameLen {
		fieldErrs["last_name"] = []string{"must be at most 150 characters"}
	}
	var role *model.Role
	if req.Role != nil {
		parsed, err := model.ParseRole(*req.Role)
		if err != nil {
			fieldErrs["role"] = []string{"must be one of: user, moderator, admin"}
		} else {
			role = &parsed
		}
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	if req.Email != nil && *req.Email != user.Email {
		emailTaken, _, err := s.users.FindConflicts(ctx, *req.Email, "")
		if err != nil {
			s.logError("query user failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
			return
		}
		if emailTaken {
			c.JSON(http.StatusConflict, map[string][]string{"email": {"already in use"}})
			return
		}
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if role != nil {
		user.Role = *role
	}
	if req.IsStaff != nil {
		user.IsStaff = *req.IsStaff
	}

	if err := s.users.Save(ctx, user); err != nil {
		s.logError("update user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

// handleDeleteUser 删除用户并吊销其未过期的 Token（仅管理员）。
//
// DELETE /api/v1/users/:username
func (s *Server) handleDeleteUser(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanManageUsers(id) {
		abortDenied(c, id)
		return
	}

	username := c.Param("username")
	if username == model.ReservedUsername {
		c.JSON(http.StatusBadRequest, gin.H{"error": "specify an explicit username"})
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.ByUsername(ctx, username)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		s.logError("query user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	if user.TokenID != "" && s.revoker != nil {
		if err := s.revoker.Revoke(ctx, user.TokenID, s.cfg.App.TokenTTL); err != nil {
			s.logError("revoke token failed", err)
		}
	}

	if err := s.users.Delete(ctx, user); err != nil {
		s.logError("delete user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": username})
}
