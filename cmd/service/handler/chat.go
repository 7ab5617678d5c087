package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/docray-ai/docray/app/logic/v1"
	"github.com/docray-ai/docray/cmd/service/middleware"
	"github.com/docray-ai/docray/pkg/ai"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/types/protocol"
	"github.com/docray-ai/docray/pkg/utils"
)

// openaiError OpenAI 兼容端点的错误返回体
type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func chatError(c *gin.Context, err error) {
	var body openaiError
	body.Error.Type = "invalid_request_error"
	body.Error.Code = http.StatusInternalServerError
	body.Error.Message = err.Error()
	if ce, ok := err.(*errors.CustomizedError); ok {
		body.Error.Code = ce.GetCode()
		body.Error.Message = ce.Message()
		if ce.GetCode() >= http.StatusInternalServerError {
			body.Error.Type = "server_error"
		}
	}
	c.Abort()
	c.JSON(body.Error.Code, body)
}

// ChatCompletions OpenAI 兼容问答入口，model 字段即应用标识
func (s *HttpSrv) ChatCompletions(c *gin.Context) {
	var req protocol.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		chatError(c, errors.New("ChatCompletions.BindJSON", "invalid request body", err).Code(http.StatusBadRequest))
		return
	}

	workspace := middleware.GetWorkspace(c)
	opts := ai.GenerateOptions{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	logic := v1.NewRagLogic(c.Request.Context(), s.Core)

	if req.Stream {
		s.streamCompletion(c, logic, workspace, req, opts)
		return
	}

	result, err := logic.Answer(workspace, req.Model, req.Messages, opts)
	if err != nil {
		chatError(c, err)
		return
	}

	resp := protocol.ChatCompletionResponse{
		ID:      "chatcmpl-" + utils.GenUniqIDStr(),
		Object:  protocol.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []protocol.CompletionChoice{
			{
				Index: 0,
				Message: types.MessageContext{
					Role:    types.USER_ROLE_ASSISTANT,
					Content: result.Answer,
				},
				FinishReason: protocol.FinishReasonStop,
			},
		},
		Usage:   result.Usage,
		Sources: result.Sources,
	}

	if req.Debug {
		c.JSON(http.StatusOK, struct {
			protocol.ChatCompletionResponse
			Meta types.RagMeta `json:"docray_meta"`
		}{resp, result.Meta})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HttpSrv) streamCompletion(c *gin.Context, logic *v1.RagLogic, workspace string, req protocol.ChatCompletionRequest, opts ai.GenerateOptions) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		chatError(c, errors.New("ChatCompletions.stream", "streaming unsupported", nil).Code(http.StatusInternalServerError))
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	started := false
	send := func(frame any) error {
		var payload []byte
		if literal, ok := frame.(string); ok {
			payload = []byte(literal) // [DONE] 字面量不做 JSON 编码
		} else {
			var err error
			if payload, err = json.Marshal(frame); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		started = true
		flusher.Flush()
		return nil
	}

	if err := logic.Stream(workspace, req.Model, req.Messages, opts, send); err != nil {
		if !started {
			chatError(c, err)
			return
		}
		// 已经开始写流，只能记录并断开
		slog.Error("chat stream aborted", slog.Any("error", err))
		c.Abort()
	}
}
