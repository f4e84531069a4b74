package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/finrecords_backend/analytics"
	"github.com/mmdatafocus/finrecords_backend/cache"
	"github.com/mmdatafocus/finrecords_backend/config"
	"github.com/mmdatafocus/finrecords_backend/models"
	"github.com/mmdatafocus/finrecords_backend/notify"
	"github.com/mmdatafocus/finrecords_backend/queue"
	"github.com/mmdatafocus/finrecords_backend/transactions"
	"github.com/mmdatafocus/finrecords_backend/utils"
)

const defaultPort = "8080"

// app bundles the wired services so handlers close over one value.
type app struct {
	logger    *logrus.Logger
	db        *gorm.DB
	rdb       *redis.Client
	store     *cache.Store
	queue     *queue.Queue
	analytics *analytics.Service
	trigger   *analytics.Trigger
	txService *transactions.Service
	publisher *notify.Publisher
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.NewLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db := config.OpenDatabase()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	rdb, locker := config.ConnectRedisWithRetry(sigCtx)

	a := buildApp(sigCtx, logger, db, rdb, locker)
	defer a.publisher.Close()

	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/auth/login", a.loginHandler)

	api := r.Group("/", a.tenantMiddleware())
	api.GET("/analytics/cache-status", a.cacheStatusHandler)
	api.GET("/analytics/export", a.exportHandler)
	api.GET("/analytics/:type", a.analyticsViewHandler)
	api.POST("/analytics/refresh", a.refreshHandler)
	api.GET("/transactions", a.listTransactionsHandler)
	api.POST("/transactions", a.createTransactionHandler)
	api.GET("/transactions/:id", a.getTransactionHandler)
	api.PUT("/transactions/:id", a.updateTransactionHandler)
	api.DELETE("/transactions/:id", a.deleteTransactionHandler)

	// Ops tooling (admin only).
	r.GET("/internal/ops/queue/counts", a.queueCountsHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Background machinery: workers drain the queue, the scheduler keeps the
	// hourly recurring registration alive, the auto-locker freezes old rows.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	worker := queue.NewWorker(a.queue, a.analytics, a.store, locker, logger)
	worker.Run(workerCtx)
	go queue.NewScheduler(a.queue, logger).Run(workerCtx)
	go transactions.NewAutoLocker(transactions.NewGormStore(db), a.trigger, logger).Run(workerCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't pick up new jobs mid-drain.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func buildApp(ctx context.Context, logger *logrus.Logger, db *gorm.DB, rdb *redis.Client, locker *redislock.Client) *app {
	store := cache.NewStore(rdb, logger)
	q := queue.New(rdb, "analytics", logger)

	engine := analytics.NewEngine(analytics.NewGormTransactionStore(db))
	svc := analytics.NewService(engine, store, analytics.NewGormCompanyStore(db), logger)
	trigger := analytics.NewTrigger(svc, q, logger)

	txService := transactions.NewService(
		transactions.NewGormStore(db),
		transactions.NewGormDepartmentCatalog(db),
		trigger,
		logger,
	)

	return &app{
		logger:    logger,
		db:        db,
		rdb:       rdb,
		store:     store,
		queue:     q,
		analytics: svc,
		trigger:   trigger,
		txService: txService,
		publisher: notify.NewPublisher(ctx, logger),
	}
}

// tenantMiddleware resolves the tenant and user for every API request and
// stores them on the request context.
func (a *app) tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId := strings.TrimSpace(c.GetHeader("x-company-id"))
		if companyId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing company"})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		if userId := strings.TrimSpace(c.GetHeader("x-user-id")); userId != "" {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *app) respondError(c *gin.Context, err error) {
	switch {
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (a *app) companyId(c *gin.Context) string {
	companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
	return companyId
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginHandler checks credentials and marks the user's company active so the
// recurring scheduler keeps its analytics warm.
func (a *app) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := a.db.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		Take(&user).Error
	if err != nil || !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := a.store.TrackActiveCompany(c.Request.Context(), user.CompanyId); err != nil {
		config.LogError(a.logger, "server.go", "loginHandler", "track active company", user.CompanyId, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":    user.ID,
		"companyId": user.CompanyId,
		"name":      user.Name,
	})
}

func (a *app) analyticsViewHandler(c *gin.Context) {
	view, err := models.ParseAnalyticsViewType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := a.analytics.GetView(c.Request.Context(), a.companyId(c), view)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (a *app) cacheStatusHandler(c *gin.Context) {
	status, err := a.analytics.GetCacheStatus(c.Request.Context(), a.companyId(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type refreshRequest struct {
	Type string `json:"type"`
}

// refreshHandler enqueues an on-demand recompute and acknowledges with the
// job id; the work happens in the background.
func (a *app) refreshHandler(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	jobType := req.Type
	if jobType == "" {
		jobType = queue.JobTypeAll
	}
	if jobType != queue.JobTypeAll {
		if _, err := models.ParseAnalyticsViewType(jobType); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	jobId, err := a.trigger.RequestRefresh(c.Request.Context(), a.companyId(c), jobType, userId, queue.PriorityUserRequested)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobId, "type": jobType})
}

func (a *app) exportHandler(c *gin.Context) {
	f, err := a.analytics.ExportWorkbook(c.Request.Context(), a.companyId(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=analytics.xlsx")
	if err := f.Write(c.Writer); err != nil {
		config.LogError(a.logger, "server.go", "exportHandler", "write workbook", a.companyId(c), err)
	}
}

func (a *app) listTransactionsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	rows, err := a.txService.List(c.Request.Context(), a.companyId(c), limit, offset)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (a *app) createTransactionHandler(c *gin.Context) {
	var input transactions.CreateTransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	tx, err := a.txService.Create(c.Request.Context(), a.companyId(c), userId, input)
	if err != nil {
		a.respondError(c, err)
		return
	}
	a.publisher.Publish(c.Request.Context(), notify.Event{
		Kind:          "transaction.created",
		CompanyId:     tx.CompanyId,
		TransactionId: tx.ID,
		UserId:        userId,
	})
	c.JSON(http.StatusCreated, tx)
}

func (a *app) getTransactionHandler(c *gin.Context) {
	tx, err := a.txService.Get(c.Request.Context(), a.companyId(c), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (a *app) updateTransactionHandler(c *gin.Context) {
	var input transactions.UpdateTransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := a.txService.Update(c.Request.Context(), a.companyId(c), c.Param("id"), input)
	if err != nil {
		a.respondError(c, err)
		return
	}
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	a.publisher.Publish(c.Request.Context(), notify.Event{
		Kind:          "transaction.updated",
		CompanyId:     tx.CompanyId,
		TransactionId: tx.ID,
		UserId:        userId,
	})
	c.JSON(http.StatusOK, tx)
}

func (a *app) deleteTransactionHandler(c *gin.Context) {
	id := c.Param("id")
	if err := a.txService.Delete(c.Request.Context(), a.companyId(c), id); err != nil {
		a.respondError(c, err)
		return
	}
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	a.publisher.Publish(c.Request.Context(), notify.Event{
		Kind:          "transaction.deleted",
		CompanyId:     a.companyId(c),
		TransactionId: id,
		UserId:        userId,
	})
	c.Status(http.StatusNoContent)
}

func (a *app) queueCountsHandler(c *gin.Context) {
	counts, err := a.queue.Counts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}
