package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classpass/internal/anchor"
	"classpass/internal/attendance"
	"classpass/internal/auth"
	"classpass/internal/config"
	"classpass/internal/geo"
	"classpass/internal/httpmiddleware"
	"classpass/internal/queue"
	"classpass/internal/roster"
	"classpass/internal/store"
)

var (
	checkinsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpass_checkins_accepted_total",
		Help: "Attendance records accepted.",
	})
	checkinsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpass_checkins_duplicate_total",
		Help: "Check-ins rejected because the student already has a record.",
	})
	checkinsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpass_checkins_geofence_total",
		Help: "Accepted check-ins by geofence classification.",
	}, []string{"status"})
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	var db *store.DB
	var st attendance.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: db not reachable: %v; using in-memory store", err)
			_ = db.Close()
			db = nil
		} else if err := db.Migrate(ctx); err != nil {
			return err
		} else {
			st = attendance.NewRepository(db.Client)
		}
	}
	if st == nil {
		log.Println("using in-memory store; records will not survive a restart")
		st = attendance.NewMemStore()
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	appCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	// The memory queue lives in this process, so the API drains it itself;
	// with redis the separate worker binary consumes instead.
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		q = mem
		go drainAnchoring(appCtx, mem, st, anchor.New(cfg.AnchorURL, cfg.AnchorSkip))
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classpass:anchoring")
	}

	svc := attendance.NewService(st)
	if redisClient.Healthy(ctx) {
		svc.WithCodeCache(redisClient)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy && cfg.QueueBackend != "memory" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": db != nil})
	})

	r.POST("/v1/teachers/register", func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required,min=8"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		teacher, err := svc.RegisterTeacher(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(teacher.ID, teacher.Name, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"teacher":      teacher,
			"access_token": tokens.AccessToken,
			"expires_at":   tokens.AccessExp.Unix(),
		})
	})

	r.POST("/v1/teachers/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		teacher, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(teacher.ID, teacher.Name, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"teacher":      teacher,
			"access_token": tokens.AccessToken,
			"expires_at":   tokens.AccessExp.Unix(),
		})
	})

	// Student-facing endpoints: no auth, a session code is the capability.
	r.GET("/v1/attend/:code", func(c *gin.Context) {
		sess, cls, err := svc.ResolveSession(c.Request.Context(), c.Param("code"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_name": sess.Name,
			"class_name":   cls.Name,
			"geofence":     cls.Geofence,
			"location":     cls.Location,
		})
	})

	r.POST("/v1/attend/:code", func(c *gin.Context) {
		var req struct {
			StudentName  string        `json:"student_name" binding:"required"`
			StudentID    string        `json:"student_id" binding:"required"`
			StudentEmail string        `json:"student_email" binding:"omitempty,email"`
			Location     *geo.Location `json:"location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := svc.CheckIn(c.Request.Context(), attendance.CheckInRequest{
			SessionCode:  c.Param("code"),
			StudentName:  req.StudentName,
			StudentID:    req.StudentID,
			StudentEmail: req.StudentEmail,
			Location:     req.Location,
		})
		if err != nil {
			if errors.Is(err, attendance.ErrDuplicateAttendance) {
				checkinsDuplicate.Inc()
			}
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		checkinsAccepted.Inc()
		checkinsByStatus.WithLabelValues(string(result.Status)).Inc()

		if err := q.Publish(c.Request.Context(), queue.Message{Type: "record", Body: []byte(result.Record.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusCreated, result)
	})

	// Workshop registration is open like attend-by-code, but keyed by email
	// instead of student id and with no geofence.
	r.GET("/v1/events/:code", func(c *gin.Context) {
		w, err := svc.ResolveWorkshop(c.Request.Context(), c.Param("code"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"workshop_name": w.Name,
			"description":   w.Description,
			"event_date":    w.EventDate,
			"location":      w.Location,
		})
	})

	r.POST("/v1/events/:code", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name" binding:"required"`
			Email string `json:"email" binding:"required,email"`
			Phone string `json:"phone" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		attendant, err := svc.AttendWorkshop(c.Request.Context(), attendance.AttendWorkshopRequest{
			Code:  c.Param("code"),
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, attendant)
	})

	authGroup := r.Group("/v1", auth.TeacherAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/classes", func(c *gin.Context) {
		var req struct {
			Name        string        `json:"name" binding:"required"`
			Description string        `json:"description"`
			Location    *geo.Location `json:"location"`
			Geofence    *geo.Geofence `json:"geofence"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls, err := svc.CreateClass(c.Request.Context(), auth.TeacherID(c), req.Name, req.Description, req.Location, req.Geofence)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, cls)
	})

	authGroup.GET("/classes", func(c *gin.Context) {
		classes, err := svc.Classes(c.Request.Context(), auth.TeacherID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"classes": classes})
	})

	authGroup.GET("/classes/:id", func(c *gin.Context) {
		cls, err := svc.ClassForTeacher(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cls)
	})

	authGroup.PUT("/classes/:id/location", func(c *gin.Context) {
		var req struct {
			Location *geo.Location `json:"location"`
			Geofence *geo.Geofence `json:"geofence"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.SetClassLocation(c.Request.Context(), auth.TeacherID(c), c.Param("id"), req.Location, req.Geofence); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.DELETE("/classes/:id", func(c *gin.Context) {
		if err := svc.DeleteClass(c.Request.Context(), auth.TeacherID(c), c.Param("id")); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.POST("/workshops", func(c *gin.Context) {
		var req struct {
			Name        string        `json:"name" binding:"required"`
			Code        string        `json:"code" binding:"required"`
			Description string        `json:"description"`
			EventDate   string        `json:"event_date"`
			Location    *geo.Location `json:"location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		w, err := svc.CreateWorkshop(c.Request.Context(), auth.TeacherID(c), req.Name, req.Code, req.Description, req.EventDate, req.Location)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, w)
	})

	authGroup.GET("/workshops", func(c *gin.Context) {
		workshops, err := svc.Workshops(c.Request.Context(), auth.TeacherID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"workshops": workshops})
	})

	authGroup.GET("/workshops/:id", func(c *gin.Context) {
		w, err := svc.WorkshopForTeacher(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, w)
	})

	authGroup.DELETE("/workshops/:id", func(c *gin.Context) {
		if err := svc.DeleteWorkshop(c.Request.Context(), auth.TeacherID(c), c.Param("id")); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.GET("/workshops/:id/attendants", func(c *gin.Context) {
		attendants, err := svc.Attendants(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendants": attendants})
	})

	authGroup.POST("/classes/:id/sessions", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess, err := svc.CreateSession(c.Request.Context(), auth.TeacherID(c), c.Param("id"), req.Name)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, sess)
	})

	authGroup.GET("/classes/:id/sessions", func(c *gin.Context) {
		sessions, err := svc.Sessions(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	authGroup.GET("/sessions/:id", func(c *gin.Context) {
		sess, err := svc.SessionForTeacher(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	authGroup.POST("/sessions/:id/end", func(c *gin.Context) {
		if err := svc.EndSession(c.Request.Context(), auth.TeacherID(c), c.Param("id")); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.GET("/sessions/:id/records", func(c *gin.Context) {
		records, err := svc.Records(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/sessions/:id/absentees", func(c *gin.Context) {
		absent, err := svc.Absentees(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"absentees": absent})
	})

	authGroup.POST("/sessions/:id/roster", func(c *gin.Context) {
		var reader io.Reader = c.Request.Body
		if file, _, err := c.Request.FormFile("file"); err == nil {
			defer file.Close()
			reader = file
		}
		res, err := roster.Parse(reader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(res.Students) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no valid roster rows", "skipped": res.Skipped})
			return
		}
		if err := svc.UploadRoster(c.Request.Context(), auth.TeacherID(c), c.Param("id"), res.Students); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"added": len(res.Students), "skipped": res.Skipped})
	})

	authGroup.GET("/sessions/:id/export.csv", func(c *gin.Context) {
		records, err := svc.Records(c.Request.Context(), auth.TeacherID(c), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="attendance.csv"`)
		if err := attendance.ExportCSV(c.Writer, records); err != nil {
			log.Printf("csv export failed: %v", err)
		}
	})

	// Live dashboard feed: re-reads the session's records on a fixed interval
	// and streams snapshots until the client disconnects.
	authGroup.GET("/sessions/:id/live", func(c *gin.Context) {
		sessionID := c.Param("id")
		if _, err := svc.SessionForTeacher(c.Request.Context(), auth.TeacherID(c), sessionID); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		updates := svc.Watch(c.Request.Context(), sessionID, cfg.WatchInterval)
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			records, ok := <-updates
			if !ok {
				return false
			}
			c.SSEvent("records", records)
			return true
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE endpoint holds its connection open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// drainAnchoring anchors accepted records from an in-process queue.
func drainAnchoring(ctx context.Context, q queue.Queue, st attendance.Store, anchorer *anchor.Client) {
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Printf("anchoring consumer init failed: %v", err)
		return
	}
	for msg := range messages {
		if msg.Type != "record" {
			continue
		}
		id := string(msg.Body)
		rec, err := st.RecordByID(ctx, id)
		if err != nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}
		receipt, err := anchorer.Submit(ctx, *rec)
		if err != nil {
			log.Printf("anchor submit failed for %s: %v", id, err)
			_ = st.SetAnchor(ctx, id, "failed", "")
			continue
		}
		_ = st.SetAnchor(ctx, id, "anchored", receipt.TxID)
	}
}

// statusFor maps domain errors to HTTP statuses; everything here is
// user-recoverable, nothing is fatal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrDuplicateAttendance),
		errors.Is(err, attendance.ErrDuplicateAttendant),
		errors.Is(err, attendance.ErrWorkshopCodeTaken),
		errors.Is(err, attendance.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrClassNotFound),
		errors.Is(err, attendance.ErrWorkshopNotFound),
		errors.Is(err, attendance.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrSessionInactive):
		return http.StatusGone
	case errors.Is(err, attendance.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrNotOwner):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
