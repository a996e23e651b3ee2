package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/api/middleware"
	"github.com/Kashikuroni/api-yamdb/internal/config"
	"github.com/Kashikuroni/api-yamdb/internal/model"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/metrics"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/notify"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/ratelimit"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/revoke"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// TokenRevoker 将 jti 加入吊销名单（删除用户时调用）。
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、各资源的存储接口以及 Gin 路由引擎。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	auth   *auth.Handler

	users      UserStore
	categories CategoryStore
	genres     GenreStore
	titles     TitleStore
	reviews    ReviewStore
	comments   CommentStore

	revoker TokenRevoker
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（限流与 Token 吊销名单）
// 3. 初始化 Gin 路由引擎并注册全部路由
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Genre{},
		&model.Title{},
		&model.GenreTitle{},
		&model.Review{},
		&model.Comment{},
	); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	mailer := notify.NewEmailNotifier(&cfg.Email, logger)
	userStore := dbUserStore{db: db}
	denylist := revoke.NewDenylist(rdb)
	limiter := ratelimit.NewRedisLimiter(rdb, "yamdb:ratelimit:auth:", cfg.App.AuthRate, cfg.App.AuthBurst)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		router:     r,
		auth:       auth.NewHandler(userStore, cfg.Security.JWTSecret, cfg.App.TokenTTL, cfg.App.CodeTTL, mailer, logger),
		users:      userStore,
		categories: dbCategoryStore{db: db},
		genres:     dbGenreStore{db: db},
		titles:     dbTitleStore{db: db},
		reviews:    dbReviewStore{db: db},
		comments:   dbCommentStore{db: db},
		revoker:    denylist,
	}
	s.registerRoutes(denylist, limiter)
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与 Redis 连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil {
			if firstErr == nil {
				firstErr = closeErr
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
//
// 读接口对所有人开放，写接口在各处理函数内通过 access 包判定；
// AuthOptional 负责解析 Bearer Token（如果有）并放入上下文。
func (s *Server) registerRoutes(denylist middleware.Revoker, limiter middleware.Allower) {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.AuthOptional(s.cfg.Security.JWTSecret, denylist, s.logger))

	authGroup := v1.Group("/auth")
	authGroup.Use(middleware.RateLimit(limiter, s.logger))
	authGroup.POST("/signup", s.auth.Signup)
	authGroup.POST("/token", s.auth.ObtainToken)

	// /users/me 与 /users/:username 共用参数路由，"me" 在处理函数内分流
	users := v1.Group("/users")
	users.GET("", s.handleListUsers)
	users.POST("", s.handleCreateUser)
	users.GET("/:username", s.handleGetUser)
	users.PATCH("/:username", s.handlePatchUser)
	users.DELETE("/:username", s.handleDeleteUser)

	categories := v1.Group("/categories")
	categories.GET("", s.handleListCategories)
	categories.POST("", s.handleCreateCategory)
	categories.PATCH("/:slug", s.handlePatchCategory)
	categories.DELETE("/:slug", s.handleDeleteCategory)

	genres := v1.Group("/genres")
	genres.GET("", s.handleListGenres)
	genres.POST("", s.handleCreateGenre)
	genres.PATCH("/:slug", s.handlePatchGenre)
	genres.DELETE("/:slug", s.handleDeleteGenre)

	titles := v1.Group("/titles")
	titles.GET("", s.handleListTitles)
	titles.POST("", s.handleCreateTitle)
	titles.GET("/:id", s.handleGetTitle)
	titles.PATCH("/:id", s.handlePatchTitle)
	titles.DELETE("/:id", s.handleDeleteTitle)

	titles.GET("/:id/reviews", s.handleListReviews)
	titles.POST("/:id/reviews", s.handleCreateReview)
	titles.GET("/:id/reviews/:rid", s.handleGetReview)
	titles.PATCH("/:id/reviews/:rid", s.handlePatchReview)
	titles.DELETE("/:id/reviews/:rid", s.handleDeleteReview)

	reviews := v1.Group("/reviews")
	reviews.GET("/:id/comments", s.handleListComments)
	reviews.POST("/:id/comments", s.handleCreateComment)
	reviews.GET("/:id/comments/:cid", s.handleGetComment)
	reviews.PATCH("/:id/comments/:cid", s.handlePatchComment)
	reviews.DELETE("/:id/comments/:cid", s.handleDeleteComment)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, slog.String("error", err.Error()))
	}
}

// abortDenied 输出拒绝响应：未认证 401，已认证但权限不足 403。
func abortDenied(c *gin.Context, id *access.Identity) {
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
}

// pageParams 解析 limit/offset 分页参数并套用配置上限。
func (s *Server) pageParams(c *gin.Context) (limit, offset int) {
	limit = parseQueryInt(c, "limit", s.cfg.App.PageSize)
	if limit <= 0 || limit > s.cfg.App.MaxPageSize {
		limit = s.cfg.App.PageSize
	}
	offset = parseQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseQueryInt 解析查询参数中的整数值，非法时返回默认值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

// parseUintParam 解析路径参数中的 ID。
func parseUintParam(c *gin.Context, key string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(key), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}
