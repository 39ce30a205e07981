package server

import (
	"net/http"

	"gatewaycred/internal/config"
	"gatewaycred/internal/credential"
	"gatewaycred/internal/ipadmission"
	mw "gatewaycred/internal/middleware"
	"gatewaycred/internal/proxy"

	"github.com/gin-gonic/gin"
)

// Dependencies encapsulates the runtime services the HTTP engine is built
// around: the credential pool, the IP admission manager, and the upstream
// proxy engine that ties them together.
type Dependencies struct {
	Pool      *credential.Pool
	IPManager *ipadmission.Manager
	Engine    *proxy.Engine
}

// BuildEngine constructs the single gin engine serving both the proxy
// surface and the operator endpoints, applying the standard middleware
// chain: request-id, recovery, CORS, logger, rate limiter, then (for the
// proxy group only) the admission gate.
func BuildEngine(cfg *config.Config, deps Dependencies) *gin.Engine {
	if !cfg.Security.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)

	engine.Use(mw.RequestID(), mw.Recovery(), mw.CORS(), mw.RequestLogger())
	engine.Use(mw.RateLimiterAutoKey(20, 40))

	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	proxyGroup := engine.Group("")
	proxyGroup.Use(mw.Admission(deps.IPManager))
	registerProxyRoutes(proxyGroup, deps.Engine)

	registerCredentialRoutes(engine, deps.Pool)
	registerIPRoutes(engine, deps.IPManager)

	return engine
}
