package v1

import (
	"fmt"
	"time"

	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/types/protocol"
	"github.com/docray-ai/docray/pkg/utils"
)

// streamWriter 按 OpenAI 兼容协议组帧：首帧带 role，内容逐帧增量，
// finish_reason 帧之后发来源扩展帧，最后以 [DONE] 收尾。
type streamWriter struct {
	id      string
	model   string
	created int64
	seq     int
	send    StreamSender
}

func newStreamWriter(model string, send StreamSender) *streamWriter {
	return &streamWriter{
		id:      "chatcmpl-" + utils.GenUniqIDStr(),
		model:   model,
		created: time.Now().Unix(),
		send:    send,
	}
}

func (w *streamWriter) frameID() string {
	w.seq++
	return fmt.Sprintf("%s-%d", w.id, w.seq)
}

func (w *streamWriter) chunk(delta protocol.ChunkDelta, finishReason *string) error {
	return w.send(protocol.ChatCompletionChunk{
		ID:      w.frameID(),
		Object:  protocol.ObjectChatCompletionChunk,
		Created: w.created,
		Model:   w.model,
		Choices: []protocol.ChunkChoice{
			{Index: 0, Delta: delta, FinishReason: finishReason},
		},
	})
}

func (w *streamWriter) role() error {
	return w.chunk(protocol.ChunkDelta{Role: types.USER_ROLE_ASSISTANT}, nil)
}

func (w *streamWriter) content(text string) error {
	if text == "" {
		return nil
	}
	return w.chunk(protocol.ChunkDelta{Content: text}, nil)
}

// finish 结束帧、来源帧与 [DONE]
func (w *streamWriter) finish(sources []types.Source) error {
	reason := protocol.FinishReasonStop
	if err := w.chunk(protocol.ChunkDelta{}, &reason); err != nil {
		return err
	}

	if err := w.send(protocol.SourcesFrame{
		ID:      w.frameID(),
		Object:  protocol.ObjectSources,
		Created: w.created,
		Model:   w.model,
		Sources: sources,
	}); err != nil {
		return err
	}

	return w.send(protocol.DoneFrame)
}
