package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/PhantomL4rd/mirapuri-stats/internal/api/middleware"
	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
	"github.com/PhantomL4rd/mirapuri-stats/internal/store"
)

// Server 发布 API：接收统计数据并管理数据版本。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	store  PublishStore
	router *gin.Engine
}

// PublishStore 发布数据存储。
type PublishStore interface {
	UpsertItems(ctx context.Context, items []model.ItemRecord) (int64, error)
	InsertUsage(ctx context.Context, version string, rows []model.UsageRecord) (int64, error)
	InsertPairs(ctx context.Context, version string, rows []model.PairRecord) (int64, error)
	StartSync(ctx context.Context) (string, error)
	CommitSync(ctx context.Context, version string, dataFrom, dataTo *time.Time) (store.CommitResult, error)
	AbortSync(ctx context.Context, version string) error
	CleanupOldVersions(ctx context.Context, keep int) ([]string, error)
	GetActiveVersion(ctx context.Context) (string, error)
	ListVersions(ctx context.Context) ([]model.VersionMetadata, error)
	PairsFor(ctx context.Context, version string, baseSlot int, baseItem string) ([]model.PairRecord, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接发布数据库并执行迁移
// 2. 初始化 Gin 路由引擎
//
// 参数:
//
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.MySQL.PublishDSN)
	if err != nil {
		return nil, err
	}
	if err := store.MigratePublish(db); err != nil {
		_ = store.Close(db)
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	s := newServer(cfg, logger, db, store.NewPublishedStore(db))
	return s, nil
}

func newServer(cfg *config.Config, logger *slog.Logger, db *gorm.DB, st PublishStore) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  st,
		router: r,
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库连接。
func (s *Server) Close() error {
	return store.Close(s.db)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	// 只读查询，供展示端校验版本切换
	s.router.GET("/sync/active", s.handleActiveVersion)
	s.router.GET("/pairs", s.handleGetPairs)

	authed := s.router.Group("/")
	authed.Use(middleware.GatewayMiddleware(s.cfg.Security.GatewayClientID, s.cfg.Security.GatewayClientSecret))
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.POST("/items", s.handleItems)
	authed.POST("/usage", s.handleUsage)
	authed.POST("/pairs", s.handlePairs)
	authed.POST("/sync/start", s.handleSyncStart)
	authed.POST("/sync/commit", s.handleSyncCommit)
	authed.POST("/sync/abort", s.handleSyncAbort)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondStoreError 将存储层错误映射为 HTTP 状态码。
func (s *Server) respondStoreError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, store.ErrVersionActive), errors.Is(err, store.ErrVersionCommitted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidVersion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("publish store failed", slog.String("op", op), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func getSubject(c *gin.Context) string {
	return c.GetString(middleware.SubjectKey)
}
