package service

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/app/response"
	"github.com/docray-ai/docray/cmd/service/handler"
	"github.com/docray-ai/docray/cmd/service/middleware"
)

func serve(core *core.Core) {
	httpSrv := &handler.HttpSrv{
		Core:   core,
		Engine: core.HttpEngine(),
	}
	setupHttpRouter(httpSrv)

	core.HttpEngine().Run(core.Cfg().Addr)
}

func setupHttpRouter(s *handler.HttpSrv) {
	s.Engine.Use(gin.Recovery())
	s.Engine.Use(middleware.Cors, middleware.SetWorkspace(), middleware.Metrics(s.Core))

	s.Engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// OpenAI 兼容入口，错误格式也按 OpenAI 惯例返回
	s.Engine.POST("/v1/chat/completions", s.ChatCompletions)

	apiV1 := s.Engine.Group("/api/v1")
	apiV1.Use(response.NewResponse())
	{
		jobs := apiV1.Group("/jobs")
		{
			jobs.POST("/crawl", s.EnqueueCrawlJob)
			jobs.POST("/index", s.EnqueueIndexJob)
			jobs.GET("", s.ListJobs)
			jobs.GET("/:jobid", s.GetJob)
			jobs.POST("/:jobid/cancel", s.CancelJob)
			jobs.POST("/:jobid/requeue", s.RequeueJob)
		}

		kb := apiV1.Group("/app/kb")
		{
			kb.POST("", s.BindKB)
			kb.GET("", s.ListKBBindings)
			kb.PUT("/:id", s.UpdateKBBinding)
			kb.DELETE("/:id", s.UnbindKB)
		}

		apiV1.GET("/retrieval/events", s.ListRetrievalEvents)
	}
}
