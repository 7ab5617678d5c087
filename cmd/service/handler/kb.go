package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/docray-ai/docray/app/logic/v1"
	"github.com/docray-ai/docray/app/response"
	"github.com/docray-ai/docray/cmd/service/middleware"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
)

type BindKBRequest struct {
	AppID    string  `json:"app_id" binding:"required"`
	KBID     string  `json:"kb_id" binding:"required"`
	Priority int     `json:"priority"`
	Weight   float64 `json:"weight"`
	Enabled  bool    `json:"enabled"`
}

func (s *HttpSrv) BindKB(c *gin.Context) {
	var req BindKBRequest
	if !middleware.VerifyJSON(c, &req) {
		return
	}

	binding, err := v1.NewKBLogic(c.Request.Context(), s.Core).Bind(middleware.GetWorkspace(c), types.KBBinding{
		AppID:    req.AppID,
		KBID:     req.KBID,
		Priority: req.Priority,
		Weight:   req.Weight,
		Enabled:  req.Enabled,
	})
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, binding)
}

func (s *HttpSrv) ListKBBindings(c *gin.Context) {
	list, err := v1.NewKBLogic(c.Request.Context(), s.Core).List(middleware.GetWorkspace(c), c.Query("app_id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, list)
}

type UpdateKBBindingRequest struct {
	Priority int     `json:"priority"`
	Weight   float64 `json:"weight"`
	Enabled  bool    `json:"enabled"`
}

func (s *HttpSrv) UpdateKBBinding(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.APIError(c, errors.New("UpdateKBBinding", "invalid binding id", err).Code(http.StatusBadRequest))
		return
	}

	var req UpdateKBBindingRequest
	if !middleware.VerifyJSON(c, &req) {
		return
	}

	if err = v1.NewKBLogic(c.Request.Context(), s.Core).Update(id, req.Priority, req.Weight, req.Enabled); err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, response.EmptyStruct{})
}

func (s *HttpSrv) UnbindKB(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.APIError(c, errors.New("UnbindKB", "invalid binding id", err).Code(http.StatusBadRequest))
		return
	}

	if err = v1.NewKBLogic(c.Request.Context(), s.Core).Unbind(id); err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, response.EmptyStruct{})
}

func (s *HttpSrv) ListRetrievalEvents(c *gin.Context) {
	page, _ := strconv.ParseUint(c.Query("page"), 10, 64)
	pageSize, _ := strconv.ParseUint(c.Query("pagesize"), 10, 64)

	list, err := v1.NewEventLogic(c.Request.Context(), s.Core).ListRetrievalEvents(middleware.GetWorkspace(c), c.Query("app_id"), page, pageSize)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, list)
}
