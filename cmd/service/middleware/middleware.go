package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/app/response"
	"github.com/docray-ai/docray/pkg/errors"
)

const (
	WORKSPACE_HEADER  = "X-Workspace"
	DEFAULT_WORKSPACE = "default"
	WORKSPACE_GIN_KEY = "workspace"
)

func Cors(c *gin.Context) {
	method := c.Request.Method
	origin := c.Request.Header.Get("Origin")
	if origin != "" {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
		c.Header("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization, X-Workspace")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Cache-Control, Content-Language, Content-Type")
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	if method == "OPTIONS" {
		c.AbortWithStatus(http.StatusNoContent)
	}
	c.Next()
}

// SetWorkspace 从请求头解析工作空间，缺省使用 default
func SetWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace := c.Request.Header.Get(WORKSPACE_HEADER)
		if workspace == "" {
			workspace = DEFAULT_WORKSPACE
		}
		c.Set(WORKSPACE_GIN_KEY, workspace)
	}
}

func GetWorkspace(c *gin.Context) string {
	return c.GetString(WORKSPACE_GIN_KEY)
}

// Metrics 上报接口耗时与错误计数
func Metrics(appCore *core.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := appCore.Metrics().ApiResponseTimer(c.FullPath())
		c.Next()
		timer.ObserveDuration()

		if c.Writer.Status() >= http.StatusBadRequest {
			appCore.Metrics().ApiErrorInc(c.Request.Method, c.FullPath(), c.Writer.Status())
		}
	}
}

// VerifyJSON 统一处理 body 解析失败
func VerifyJSON[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.APIError(c, errors.New("middleware.VerifyJSON", "invalid request body", err).Code(http.StatusBadRequest))
		return false
	}
	return true
}
