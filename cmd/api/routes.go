package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schooltrack/internal/auth"
	"schooltrack/internal/directory"
	"schooltrack/internal/reader"
	"schooltrack/internal/store"
	"schooltrack/internal/tagcodec"
)

func (s *server) routes(r *gin.Engine, redisClient *store.Redis) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "schooltrack running"})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"reader_connected": s.gateway.Connected()})
	})

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := s.db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/register", s.handleRegister)
	r.POST("/login", s.handleLogin)

	base := r.Group("", auth.Require(auth.LevelTeacher, s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	base.GET("/students", s.handleListStudents)
	base.GET("/ws", s.handleWebsocket)
	base.GET("/system/scan-test", s.handleScanTest)
	base.POST("/teacher/register-tag", s.handleRegisterTag)
	base.GET("/teacher/current-duty", s.handleCurrentDuty)
	base.POST("/teacher/assign-duty/:id", s.handleAssignDuty)
	base.GET("/teacher/check-in-status", s.handleCheckInStatus)
	base.GET("/teacher/check-in-logs", s.handleCheckInLogs)

	s.adminRoutes(r)
}

func (s *server) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if !auth.ValidRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unknown role"})
		return
	}

	if existing, err := s.repo.OperatorByUsername(c.Request.Context(), req.Username); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "lookup failed"})
		return
	} else if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "hash failed"})
		return
	}
	op, err := s.repo.InsertOperator(c.Request.Context(), directory.Operator{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
		return
	}

	token, _, err := auth.Issue(op.ID, op.Username, op.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token issue failed"})
		return
	}

	s.auditAs(c, op.ID, "register", "operator", op.ID, "account created with role "+op.Role)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      op.ID,
		"user_role":    op.Role,
	})
}

func (s *server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	op, err := s.repo.OperatorByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "lookup failed"})
		return
	}
	if op == nil || !op.Active || !auth.CheckPassword(op.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid username or password"})
		return
	}

	token, _, err := auth.Issue(op.ID, op.Username, op.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token issue failed"})
		return
	}

	s.auditAs(c, op.ID, "login", "operator", op.ID, "")
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      op.ID,
		"user_role":    op.Role,
	})
}

func (s *server) handleListStudents(c *gin.Context) {
	students, err := s.repo.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if students == nil {
		students = []directory.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// handleRegisterTag mints a fresh payload, writes it to a presented tag and
// creates the student record. "token" mode skips the physical write. The
// reader guard is acquired opportunistically: a busy reader is 503, not a
// wait.
func (s *server) handleRegisterTag(c *gin.Context) {
	var req struct {
		StudentName string `json:"student_name"`
		SchoolClass string `json:"schoolClass"`
		Image       string `json:"image"`
		Mode        string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if req.StudentName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Student name is required"})
		return
	}
	if !s.gateway.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "NFC reader not available"})
		return
	}
	claims, _ := auth.FromContext(c)

	if req.Mode == "token" {
		tagUUID := uuid.NewString()
		student, err := s.repo.InsertStudent(c.Request.Context(), directory.Student{
			TagID:       tagUUID,
			Name:        req.StudentName,
			SchoolClass: req.SchoolClass,
			LastScan:    time.Now().Unix(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		s.auditAs(c, claims.OperatorID, "register_tag", "student", student.ID, "token mode, no tag written")
		c.JSON(http.StatusOK, gin.H{"written": true, "reason": "registered in token mode", "tag_uuid": tagUUID})
		return
	}

	var (
		written bool
		reason  string
		tagUUID string
		student directory.Student
	)
	err := s.gateway.Connect(c.Request.Context(), reader.Options{
		GuardTimeout: s.cfg.WriteGuardTimeout,
		Deadline:     s.cfg.WriteDeadline,
	}, func(t reader.Tag) bool {
		payload, decodeReason := tagcodec.Decode(t)
		if decodeReason == tagcodec.ReasonNotNDEF {
			reason = decodeReason
			return true
		}
		if payload != "" {
			if existing, err := s.repo.StudentByTag(c.Request.Context(), payload); err == nil && existing != nil {
				reason = "tag already registered to " + existing.Name
				return true
			}
		}
		tagUUID = uuid.NewString()
		if err := tagcodec.Encode(t, tagUUID); err != nil {
			reason = "write error: " + err.Error()
			return true
		}
		var insertErr error
		student, insertErr = s.repo.InsertStudent(c.Request.Context(), directory.Student{
			TagID:       tagUUID,
			Name:        req.StudentName,
			SchoolClass: req.SchoolClass,
			LastScan:    time.Now().Unix(),
		})
		if insertErr != nil {
			reason = "store error: " + insertErr.Error()
			return true
		}
		written = true
		reason = "tag written"
		return true
	})

	switch {
	case errors.Is(err, reader.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "reader busy"})
		return
	case errors.Is(err, reader.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "NFC reader not available"})
		return
	case errors.Is(err, reader.ErrNoTag):
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": "no tag presented within timeout"})
		return
	case err != nil:
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": "connect error: " + err.Error()})
		return
	}
	if !written {
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": reason})
		return
	}

	s.auditAs(c, claims.OperatorID, "register_tag", "student", student.ID, "tag written for "+req.StudentName)
	c.JSON(http.StatusOK, gin.H{"written": true, "reason": reason, "tag_uuid": tagUUID})
}

func (s *server) handleCurrentDuty(c *gin.Context) {
	duty, err := s.repo.DutyHolder(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if duty == nil {
		c.JSON(http.StatusOK, gin.H{"duty_teacher": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"duty_teacher": duty})
}

func (s *server) handleAssignDuty(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid user id"})
		return
	}
	if err := s.repo.AssignDuty(c.Request.Context(), id); err != nil {
		if isNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "assign_duty", "operator", id, "")
	c.JSON(http.StatusOK, gin.H{"message": "duty assigned", "user_id": id})
}

func (s *server) handleCheckInStatus(c *gin.Context) {
	students, err := s.repo.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if students == nil {
		students = []directory.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (s *server) handleCheckInLogs(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	logs, err := s.repo.ListAuditByActions(c.Request.Context(), []string{
		directory.ActionCheckIn,
		directory.ActionCheckOut,
		directory.ActionRecordedCheckIn,
		directory.ActionRecordedCheckOut,
	}, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if logs == nil {
		logs = []directory.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// handleScanTest does one short read with the opportunistic guard timeout,
// reporting what the reader sees without processing anything.
func (s *server) handleScanTest(c *gin.Context) {
	if !s.gateway.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "NFC reader not available"})
		return
	}
	var (
		uid     string
		payload string
		reason  string
	)
	err := s.gateway.Connect(c.Request.Context(), reader.Options{
		GuardTimeout: s.cfg.WriteGuardTimeout,
		Deadline:     3 * time.Second,
	}, func(t reader.Tag) bool {
		uid = t.UID()
		payload, reason = tagcodec.Decode(t)
		return true
	})

	switch {
	case errors.Is(err, reader.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "reader busy"})
	case errors.Is(err, reader.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "NFC reader not available"})
	case errors.Is(err, reader.ErrNoTag):
		c.JSON(http.StatusOK, gin.H{"detected": false})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"detected": true, "uid": uid, "payload": payload, "reason": reason})
	}
}

func (s *server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.hub.Register(conn)
	go func() {
		defer func() {
			s.hub.Unregister(conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// auditAs appends an audit entry for an HTTP-driven mutation. Failures are
// logged only; they never fail the request that already happened.
func (s *server) auditAs(c *gin.Context, actorID int64, action, targetType string, targetID int64, detail string) {
	if err := s.repo.AppendAudit(c.Request.Context(), directory.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
		Origin:     c.ClientIP(),
	}); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("audit write failed")
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
