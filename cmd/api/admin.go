package main

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schooltrack/internal/auth"
	"schooltrack/internal/directory"
	"schooltrack/internal/sysconfig"
)

func (s *server) adminRoutes(r *gin.Engine) {
	it := r.Group("/it", auth.Require(auth.LevelITStaff, s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	it.GET("/audit-logs", s.handleAuditLogs)
	it.DELETE("/students/:id", s.handleDeleteStudent)

	admin := r.Group("/admin", auth.Require(auth.LevelAdmin, s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	admin.GET("/users", s.handleListUsers)
	admin.GET("/users/:id/role", s.handleUpdateUserRole)
	admin.GET("/users/:id/activate", s.handleSetUserActive(true))
	admin.GET("/users/:id/deactivate", s.handleSetUserActive(false))
	admin.DELETE("/users/:id", s.handleDeleteUser)
	admin.GET("/system-metrics", s.handleSystemMetrics)
	admin.GET("/system-config", s.handleGetSystemConfig)
	admin.PUT("/system-config", s.handlePutSystemConfig)
	admin.GET("/audit-logs", s.handleAuditLogs)
	admin.POST("/generate-report", s.handleGenerateReport)
	admin.POST("/export-data", s.handleExportData)
	admin.POST("/create-backup", s.handleCreateBackup)
	admin.POST("/maintenance", s.handleMaintenance)
	admin.POST("/emergency-shutdown", s.handleEmergencyShutdown)
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func (s *server) handleAuditLogs(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	logs, err := s.repo.ListAudit(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if logs == nil {
		logs = []directory.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *server) handleDeleteStudent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid student id"})
		return
	}
	if err := s.repo.DeleteStudent(c.Request.Context(), id); err != nil {
		if isNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "delete_student", "student", id, "")
	c.JSON(http.StatusOK, gin.H{"message": "student deleted", "student_id": id})
}

func (s *server) handleListUsers(c *gin.Context) {
	users, err := s.repo.ListOperators(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if users == nil {
		users = []directory.Operator{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *server) handleUpdateUserRole(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid user id"})
		return
	}
	role := c.Query("role")
	if !auth.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unknown role"})
		return
	}
	if err := s.repo.UpdateOperatorRole(c.Request.Context(), id, role); err != nil {
		if isNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "update_role", "operator", id, "role set to "+role)
	c.JSON(http.StatusOK, gin.H{"message": "role updated", "user_id": id, "role": role})
}

func (s *server) handleSetUserActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid user id"})
			return
		}
		if err := s.repo.SetOperatorActive(c.Request.Context(), id, active); err != nil {
			if isNoRows(err) {
				c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		action, msg := "deactivate_user", "user deactivated"
		if active {
			action, msg = "activate_user", "user activated"
		}
		claims, _ := auth.FromContext(c)
		s.auditAs(c, claims.OperatorID, action, "operator", id, "")
		c.JSON(http.StatusOK, gin.H{"message": msg, "user_id": id})
	}
}

func (s *server) handleDeleteUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid user id"})
		return
	}
	if err := s.repo.DeleteOperator(c.Request.Context(), id); err != nil {
		if isNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "delete_user", "operator", id, "")
	c.JSON(http.StatusOK, gin.H{"message": "user deleted", "user_id": id})
}

var checkinActions = []string{directory.ActionCheckIn, directory.ActionRecordedCheckIn}

func (s *server) handleSystemMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	totalUsers, activeUsers, err := s.repo.CountOperators(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	totalCheckins, todayFromAudit, err := s.repo.CountAuditByActions(ctx, checkinActions, dayStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	todayCheckins, err := s.statsRW.TodayCheckins(ctx)
	if err != nil || todayCheckins == 0 {
		// Redis counter missing (worker not running); the audit trail is
		// authoritative anyway.
		todayCheckins = todayFromAudit
	}

	dbSize, err := s.db.Size(ctx)
	if err != nil {
		s.log.WithError(err).Debug("database size query failed")
		dbSize = 0
	}

	readerStatus := "disconnected"
	if s.gateway.Connected() {
		readerStatus = "connected"
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":       totalUsers,
		"active_users":      activeUsers,
		"total_checkins":    totalCheckins,
		"today_checkins":    todayCheckins,
		"system_uptime":     int64(time.Since(s.started).Seconds()),
		"database_size":     dbSize,
		"nfc_reader_status": readerStatus,
	})
}

func (s *server) handleGetSystemConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.sysCfg.Get(c.Request.Context()))
}

func (s *server) handlePutSystemConfig(c *gin.Context) {
	var cfg sysconfig.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if err := s.sysCfg.Set(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "update_system_config", "system", 0, "")
	c.JSON(http.StatusOK, gin.H{"message": "configuration updated"})
}

func (s *server) handleGenerateReport(c *gin.Context) {
	ctx := c.Request.Context()
	totalUsers, activeUsers, err := s.repo.CountOperators(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	totalStudents, err := s.repo.CountStudents(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	totalCheckins, _, err := s.repo.CountAuditByActions(ctx, checkinActions, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "generate_report", "system", 0, "")
	c.JSON(http.StatusOK, gin.H{"report": gin.H{
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"total_users":    totalUsers,
		"active_users":   activeUsers,
		"total_students": totalStudents,
		"total_checkins": totalCheckins,
	}})
}

func (s *server) handleExportData(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := s.repo.ListOperators(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	students, err := s.repo.ListStudents(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	logs, err := s.repo.ListAudit(ctx, 1000)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "export_data", "system", 0, "")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"users":       users,
		"students":    students,
		"audit_logs":  logs,
	}})
}

func (s *server) handleCreateBackup(c *gin.Context) {
	size, err := s.db.Size(c.Request.Context())
	if err != nil {
		size = 0
	}
	claims, _ := auth.FromContext(c)
	backupID := uuid.NewString()
	s.auditAs(c, claims.OperatorID, "create_backup", "system", 0, "backup "+backupID)
	c.JSON(http.StatusOK, gin.H{"backup": gin.H{
		"backup_id":  backupID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"size":       size,
		"status":     "completed",
	}})
}

func (s *server) handleMaintenance(c *gin.Context) {
	tasks := []string{}
	if _, err := s.db.Client.ExecContext(c.Request.Context(), "ANALYZE"); err != nil {
		s.log.WithError(err).Warn("analyze failed")
		tasks = append(tasks, "analyze database: failed")
	} else {
		tasks = append(tasks, "analyze database: done")
	}
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "maintenance", "system", 0, "")
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *server) handleEmergencyShutdown(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	s.auditAs(c, claims.OperatorID, "emergency_shutdown", "system", 0, "")
	c.JSON(http.StatusOK, gin.H{"message": "emergency shutdown initiated"})

	// Let the response flush before tearing the listener down.
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.requestShutdown()
	}()
}
