package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/types/protocol"
)

func TestStreamWriter_FrameSequence(t *testing.T) {
	var frames []any
	w := newStreamWriter("gpt-4o-mini", func(frame any) error {
		frames = append(frames, frame)
		return nil
	})

	require.NoError(t, w.role())
	require.NoError(t, w.content("你好"))
	require.NoError(t, w.content("")) // 空增量不发帧
	require.NoError(t, w.content("，世界"))
	require.NoError(t, w.finish([]types.Source{
		{Ref: 1, URL: "https://docs.example.com/a", Title: "a"},
	}))

	// role + 2 content + finish + sources + [DONE]
	require.Len(t, frames, 6)

	first, ok := frames[0].(protocol.ChatCompletionChunk)
	require.True(t, ok)
	assert.Equal(t, protocol.ObjectChatCompletionChunk, first.Object)
	assert.Equal(t, "gpt-4o-mini", first.Model)
	assert.Equal(t, types.USER_ROLE_ASSISTANT, first.Choices[0].Delta.Role)
	assert.Nil(t, first.Choices[0].FinishReason)

	second := frames[1].(protocol.ChatCompletionChunk)
	assert.Equal(t, "你好", second.Choices[0].Delta.Content)

	finish := frames[3].(protocol.ChatCompletionChunk)
	require.NotNil(t, finish.Choices[0].FinishReason)
	assert.Equal(t, protocol.FinishReasonStop, *finish.Choices[0].FinishReason)

	sources, ok := frames[4].(protocol.SourcesFrame)
	require.True(t, ok)
	assert.Equal(t, protocol.ObjectSources, sources.Object)
	assert.Len(t, sources.Sources, 1)

	assert.Equal(t, protocol.DoneFrame, frames[5])
}

func TestStreamWriter_IncrementingFrameID(t *testing.T) {
	var ids []string
	w := newStreamWriter("m", func(frame any) error {
		if chunk, ok := frame.(protocol.ChatCompletionChunk); ok {
			ids = append(ids, chunk.ID)
		}
		return nil
	})

	require.NoError(t, w.role())
	require.NoError(t, w.content("a"))
	require.NoError(t, w.content("b"))

	require.Len(t, ids, 3)
	// 同一次回答共享前缀，序号逐帧递增
	assert.NotEqual(t, ids[0], ids[1])
	prefix := ids[0][:len(ids[0])-1]
	for _, id := range ids {
		assert.Contains(t, id, prefix[:20])
	}
}
