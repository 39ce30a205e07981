package middleware

import (
	"net/http"

	gwerrors "gatewaycred/internal/errors"
	"gatewaycred/internal/ipadmission"
	"gatewaycred/internal/netutil"

	"github.com/gin-gonic/gin"
)

// Admission gates every proxy request through the IP admission subsystem
// before a credential is ever borrowed or an upstream call attempted.
func Admission(mgr *ipadmission.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := netutil.IPString(netutil.ExtractClientIP(c))
		if ip == "" {
			ip = c.ClientIP()
		}

		if !mgr.Record(c.Request.Context(), ip, c.FullPath(), c.Request.UserAgent(), c.Param("model")) {
			apiErr := gwerrors.New(http.StatusForbidden, "admission_rejected", "source ip is banned or rate-limited")
			body, _ := apiErr.ToJSON()
			c.Data(http.StatusForbidden, "application/json", body)
			c.Abort()
			return
		}

		c.Set("client_ip", ip)
		c.Next()
	}
}
