package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/docray-ai/docray/app/logic/v1"
	"github.com/docray-ai/docray/app/response"
	"github.com/docray-ai/docray/cmd/service/middleware"
	"github.com/docray-ai/docray/pkg/types"
)

type EnqueueCrawlRequest struct {
	AppID   string                `json:"app_id"`
	Payload types.CrawlJobPayload `json:"payload" binding:"required"`
}

func (s *HttpSrv) EnqueueCrawlJob(c *gin.Context) {
	var req EnqueueCrawlRequest
	if !middleware.VerifyJSON(c, &req) {
		return
	}

	job, err := v1.NewJobLogic(c.Request.Context(), s.Core).EnqueueCrawl(middleware.GetWorkspace(c), req.AppID, req.Payload)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, job)
}

type EnqueueIndexRequest struct {
	AppID   string                `json:"app_id"`
	Payload types.IndexJobPayload `json:"payload" binding:"required"`
}

func (s *HttpSrv) EnqueueIndexJob(c *gin.Context) {
	var req EnqueueIndexRequest
	if !middleware.VerifyJSON(c, &req) {
		return
	}

	job, err := v1.NewJobLogic(c.Request.Context(), s.Core).EnqueueIndex(middleware.GetWorkspace(c), req.AppID, req.Payload)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, job)
}

func (s *HttpSrv) GetJob(c *gin.Context) {
	job, err := v1.NewJobLogic(c.Request.Context(), s.Core).GetJob(middleware.GetWorkspace(c), c.Param("jobid"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, job)
}

type ListJobsResponse struct {
	List  []types.Job `json:"list"`
	Total int64       `json:"total"`
}

func (s *HttpSrv) ListJobs(c *gin.Context) {
	page, _ := strconv.ParseUint(c.Query("page"), 10, 64)
	pageSize, _ := strconv.ParseUint(c.Query("pagesize"), 10, 64)

	opts := types.ListJobOptions{
		WorkspaceID: middleware.GetWorkspace(c),
		KBID:        c.Query("kb_id"),
		Type:        c.Query("type"),
		Status:      c.Query("status"),
	}

	list, total, err := v1.NewJobLogic(c.Request.Context(), s.Core).ListJobs(opts, page, pageSize)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, ListJobsResponse{List: list, Total: total})
}

func (s *HttpSrv) CancelJob(c *gin.Context) {
	if err := v1.NewJobLogic(c.Request.Context(), s.Core).CancelJob(middleware.GetWorkspace(c), c.Param("jobid")); err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, response.EmptyStruct{})
}

func (s *HttpSrv) RequeueJob(c *gin.Context) {
	job, err := v1.NewJobLogic(c.Request.Context(), s.Core).RequeueJob(middleware.GetWorkspace(c), c.Param("jobid"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, job)
}
