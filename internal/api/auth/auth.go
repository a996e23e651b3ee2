// Package auth 实现注册确认码流程与 Token 兑换。
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/model"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/metrics"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound 表示存储中不存在对应记录。
var ErrNotFound = errors.New("record not found")

const codeLen = 6

// UserStore 定义认证流程所需的用户存储操作。
type UserStore interface {
	// ByEmailAndUsername 精确匹配 (email, username) 对，未找到返回 ErrNotFound。
	ByEmailAndUsername(ctx context.Context, email, username string) (*model.User, error)
	// ByUsername 按用户名查找，未找到返回 ErrNotFound。
	ByUsername(ctx context.Context, username string) (*model.User, error)
	// FindConflicts 分别报告 email 和 username 是否已被占用。
	FindConflicts(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	Create(ctx context.Context, user *model.User) error
	Save(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, user *model.User) error
}

// Handler 提供注册与 Token 兑换接口。
type Handler struct {
	store     UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
	codeTTL   time.Duration
	mailer    notify.CodeSender
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。签名密钥显式注入，不读全局配置。
func NewHandler(store UserStore, jwtSecret string, tokenTTL, codeTTL time.Duration, mailer notify.CodeSender, logger *slog.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	return &Handler{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		codeTTL:   codeTTL,
		mailer:    mailer,
		logger:    logger,
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type tokenRequest struct {
	Username         string `json:"username"`
	ConfirmationCode string `json:"confirmation_code"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type customClaims struct {
	jwt.RegisteredClaims
	UID     uint   `json:"uid"`
	Role    string `json:"role"`
	IsStaff bool   `json:"is_staff"`
}

// Signup 处理注册请求。
//
// 已存在的 (email, username) 对视为幂等重试：重新生成确认码并重发，
// 不创建第二条用户记录。其他重复的 email / username 返回 409。
// 每次调用恰好发送一封邮件。
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	username := strings.TrimSpace(req.Username)

	if fieldErrs := validateSignup(email, username); len(fieldErrs) > 0 {
		metrics.SignupTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()

	// 幂等重试路径：同一 (email, username) 对已存在则只重发确认码
	existing, err := h.store.ByEmailAndUsername(ctx, email, username)
	if err == nil {
		if err := h.issueCode(ctx, existing); err != nil {
			h.logWarn("issue confirmation code failed", email, err)
			metrics.SignupTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.logInfo("confirmation code reissued", email)
		metrics.SignupTotal.WithLabelValues("reissued").Inc()
		c.JSON(http.StatusOK, gin.H{"message": "confirmation code sent"})
		return
	}
	if !errors.Is(err, ErrNotFound) {
		metrics.SignupTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	emailTaken, usernameTaken, err := h.store.FindConflicts(ctx, email, username)
	if err != nil {
		metrics.SignupTotal.WithLabelValues("error").Inc()
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
		metrics.SignupTotal.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusConflict, conflict)
		return
	}

	user := &model.User{
		Email:    email,
		Username: username,
		Role:     model.RoleUser,
	}
	if err := h.store.Create(ctx, user); err != nil {
		h.logWarn("create user failed", email, err)
		metrics.SignupTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	if err := h.issueCode(ctx, user); err != nil {
		// 邮件没发出去的记录没有意义，回滚以便用户重试
		_ = h.store.Delete(ctx, user)
		h.logWarn("issue confirmation code failed", email, err)
		metrics.SignupTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logInfo("user signed up", email)
	metrics.SignupTotal.WithLabelValues("created").Inc()
	c.JSON(http.StatusOK, gin.H{"email": user.Email, "username": user.Username})
}

// ObtainToken 用确认码兑换访问 Token。
//
// 未知用户名返回 404，确认码不匹配或已过期返回 400。
// 成功后 Token 持久化在用户记录上，确认码作废（单次有效）。
func (h *Handler) ObtainToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := strings.TrimSpace(req.Username)
	code := strings.TrimSpace(req.ConfirmationCode)

	fieldErrs := map[string][]string{}
	if username == "" {
		fieldErrs["username"] = append(fieldErrs["username"], "required")
	}
	if code == "" {
		fieldErrs["confirmation_code"] = append(fieldErrs["confirmation_code"], "required")
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.ByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	if !h.codeMatches(user, code) {
		metrics.TokenExchangeFailedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confirmation code"})
		return
	}

	token, jti, err := h.issueToken(user)
	if err != nil {
		h.logWarn("sign token failed", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	user.Token = token
	user.TokenID = jti
	user.ConfirmationCode = ""
	user.ConfirmationCodeExpiresAt = nil
	user.ConfirmationCodeSentAt = nil
	if err := h.store.Save(ctx, user); err != nil {
		h.logWarn("persist token failed", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persist token failed"})
		return
	}

	h.logInfo("token issued", user.Email)
	metrics.TokenIssuedTotal.Inc()
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

// validateSignup 返回逐字段的校验错误。
func validateSignup(email, username string) map[string][]string {
	errs := map[string][]string{}
	if msgs := model.ValidateEmail(email); len(msgs) > 0 {
		errs["email"] = msgs
	}
	if msgs := model.ValidateUsername(username); len(msgs) > 0 {
		errs["username"] = msgs
	}
	return errs
}

// issueCode 生成新确认码，覆盖旧码并通过邮件发送。
func (h *Handler) issueCode(ctx context.Context, user *model.User) error {
	code, err := generateCode(codeLen)
	if err != nil {
		return fmt.Errorf("generate code failed")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code failed")
	}

	exp := time.Now().Add(h.codeTTL)
	now := time.Now()
	user.ConfirmationCode = string(hash)
	user.ConfirmationCodeExpiresAt = &exp
	user.ConfirmationCodeSentAt = &now

	if err := h.store.Save(ctx, user); err != nil {
		h.logWarn("save confirmation code failed", user.Email, err)
		return fmt.Errorf("save code failed")
	}
	if h.mailer == nil {
		return fmt.Errorf("email notifier not configured")
	}
	if err := h.mailer.SendConfirmationCode(user.Email, code); err != nil {
		metrics.ConfirmationEmailTotal.WithLabelValues("error").Inc()
		h.logWarn("send confirmation email failed", user.Email, err)
		return fmt.Errorf("send confirmation failed")
	}
	metrics.ConfirmationEmailTotal.WithLabelValues("sent").Inc()
	return nil
}

func (h *Handler) codeMatches(user *model.User, code string) bool {
	if user.ConfirmationCode == "" {
		return false
	}
	if user.ConfirmationCodeExpiresAt == nil || time.Now().After(*user.ConfirmationCodeExpiresAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.ConfirmationCode), []byte(code)) == nil
}

// issueToken 签发带 jti 的 HS256 Token，返回 Token 字符串和 jti。
func (h *Handler) issueToken(user *model.User) (string, string, error) {
	jti := uuid.NewString()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        jti,
		},
		UID:     user.ID,
		Role:    user.Role.String(),
		IsStaff: user.IsStaff,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func generateCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid code length")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = '0' + (buf[i] % 10)
	}
	return string(buf), nil
}

func (h *Handler) logInfo(msg, email string) {
	if h.logger != nil {
		h.logger.Info(msg, slog.String("email", email))
	}
}

func (h *Handler) logWarn(msg, email string, err error) {
	if h.logger != nil {
		h.logger.Warn(msg, slog.String("email", email), slog.String("error", err.Error()))
	}
}
