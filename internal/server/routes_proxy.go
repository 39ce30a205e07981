package server

import (
	"io"
	"net/http"

	"gatewaycred/internal/errors"
	"gatewaycred/internal/proxy"

	"github.com/gin-gonic/gin"
)

// registerProxyRoutes mounts the upstream-proxying surface as
// POST /v1internal/{model}/:generateContent and
// POST /v1internal/{model}/:streamGenerateContent (the colon before the
// action is optional). Gin cannot mix a path parameter with a literal colon
// in the same segment, so the action sits in its own segment and is
// dispatched from a trailing wildcard, the same trick the teacher's Gemini
// route registration uses; /v1internal/{model}:generateContent as a single
// segment is not matched.
func registerProxyRoutes(root gin.IRoutes, engine *proxy.Engine) {
	root.POST("/v1internal/:model/*action", func(c *gin.Context) {
		model, action := splitModelAction(c.Param("model"), c.Param("action"))
		switch action {
		case "generateContent":
			handleGenerate(c, engine, model)
		case "streamGenerateContent":
			handleStream(c, engine, model)
		default:
			writeAPIError(c, errors.New(http.StatusNotFound, "not_found", "unknown action"))
		}
	})
}

// splitModelAction recovers {model} and {action}. Gin cannot match a literal
// colon within the same path segment as a param, so the action is mounted
// behind a trailing wildcard and arrives as "/:generateContent" (leading
// slash from the wildcard match, leading colon from the upstream-mirroring
// convention); both are stripped here.
func splitModelAction(modelParam, actionParam string) (model, action string) {
	action = actionParam
	for len(action) > 0 && (action[0] == '/' || action[0] == ':') {
		action = action[1:]
	}
	return modelParam, action
}

func handleGenerate(c *gin.Context, engine *proxy.Engine, model string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAPIError(c, errors.New(http.StatusBadRequest, "invalid_request", "failed to read request body"))
		return
	}

	result, apiErr := engine.Generate(c.Request.Context(), model, body)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}
	c.Data(http.StatusOK, "application/json", result)
}

func handleStream(c *gin.Context, engine *proxy.Engine, model string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAPIError(c, errors.New(http.StatusBadRequest, "invalid_request", "failed to read request body"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	sink := newGinSink(c)
	if apiErr := engine.Stream(c.Request.Context(), model, body, sink); apiErr != nil {
		streamAPIError(sink, apiErr)
	}
}

// writeAPIError serializes an APIError as a unary JSON error response.
func writeAPIError(c *gin.Context, apiErr *errors.APIError) {
	body, err := apiErr.ToJSON()
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(apiErr.HTTPStatus, "application/json", body)
}

// streamAPIError surfaces an error discovered after SSE headers were already
// flushed: the only remaining option is one `data:` frame carrying the same
// structured error object.
func streamAPIError(sink *ginSink, apiErr *errors.APIError) {
	body, err := apiErr.ToJSON()
	if err != nil {
		return
	}
	_ = sink.WriteFrame(body)
	sink.Flush()
}
