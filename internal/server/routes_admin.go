package server

import (
	"net/http"
	"strconv"

	"gatewaycred/internal/credential"
	"gatewaycred/internal/errors"
	"gatewaycred/internal/ipadmission"

	"github.com/gin-gonic/gin"
)

// registerCredentialRoutes mounts the C3 operator surface: list stats,
// enable/disable individual credentials.
func registerCredentialRoutes(root gin.IRoutes, pool *credential.Pool) {
	root.GET("/api/credentials", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"credentials": pool.Snapshots()})
	})
	root.POST("/api/credentials/:id/enable", func(c *gin.Context) {
		if err := pool.Enable(c.Param("id")); err != nil {
			writeAPIError(c, errors.New(http.StatusNotFound, "not_found", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	root.POST("/api/credentials/:id/disable", func(c *gin.Context) {
		if err := pool.Disable(c.Param("id")); err != nil {
			writeAPIError(c, errors.New(http.StatusNotFound, "not_found", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}

// registerIPRoutes mounts the C4 operator surface: ranked usage view, ban /
// unban / rate-limit mutation.
func registerIPRoutes(root gin.IRoutes, mgr *ipadmission.Manager) {
	root.GET("/api/ips", func(c *gin.Context) {
		rankBy := ipadmission.RankByToday
		if c.Query("rank_by") == "total_requests" {
			rankBy = ipadmission.RankByTotal
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
		includeBanned := c.Query("include_banned") == "true"

		c.JSON(http.StatusOK, mgr.Rank(rankBy, page, pageSize, includeBanned))
	})

	root.POST("/api/ips/:ip/status", func(c *gin.Context) {
		var req struct {
			Status           string `json:"status"`
			RateLimitSeconds int64  `json:"rate_limit_seconds"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, errors.New(http.StatusBadRequest, "invalid_request", "invalid json body"))
			return
		}

		operatorIP := c.ClientIP()
		result := mgr.SetStatus(c.Param("ip"), ipadmission.Status(req.Status), req.RateLimitSeconds, operatorIP)
		if !result.OK {
			body := gin.H{"error": result.Error}
			if result.RemainingMinutes > 0 {
				body["remaining_minutes"] = result.RemainingMinutes
			}
			c.JSON(http.StatusTooManyRequests, body)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}
