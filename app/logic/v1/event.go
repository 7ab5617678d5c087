package v1

import (
	"context"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
)

type EventLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewEventLogic(ctx context.Context, core *core.Core) *EventLogic {
	return &EventLogic{
		ctx:  ctx,
		core: core,
	}
}

// ListRetrievalEvents 分页查询检索事件，供运营侧排查
func (l *EventLogic) ListRetrievalEvents(workspaceID, appID string, page, pageSize uint64) ([]types.RetrievalEvent, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 || pageSize > 100 {
		pageSize = 20
	}

	list, err := l.core.Store().RetrievalEventStore().ListEvents(l.ctx, workspaceID, appID, page, pageSize)
	if err != nil {
		return nil, errors.New("EventLogic.ListRetrievalEvents.Store.ListEvents", "internal error", err)
	}
	return list, nil
}
