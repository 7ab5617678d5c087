package v1

import (
	"context"
	"net/http"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
)

type KBLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewKBLogic(ctx context.Context, core *core.Core) *KBLogic {
	return &KBLogic{
		ctx:  ctx,
		core: core,
	}
}

// Bind 建立应用与知识库的绑定
func (l *KBLogic) Bind(workspaceID string, binding types.KBBinding) (*types.KBBinding, error) {
	if binding.AppID == "" || binding.KBID == "" {
		return nil, errors.New("KBLogic.Bind", "app_id and kb_id are required", nil).Code(http.StatusBadRequest)
	}
	if binding.Weight < 0 {
		return nil, errors.New("KBLogic.Bind", "weight must be >= 0", nil).Code(http.StatusBadRequest)
	}
	binding.WorkspaceID = workspaceID
	if binding.Weight == 0 {
		binding.Weight = 1
	}

	if err := l.core.Store().AppKBStore().Create(l.ctx, binding); err != nil {
		return nil, errors.New("KBLogic.Bind.AppKBStore.Create", "internal error", err)
	}
	return &binding, nil
}

// List 列出应用的全部绑定，含停用的
func (l *KBLogic) List(workspaceID, appID string) ([]types.KBBinding, error) {
	list, err := l.core.Store().AppKBStore().List(l.ctx, workspaceID, appID)
	if err != nil {
		return nil, errors.New("KBLogic.List.AppKBStore.List", "internal error", err)
	}
	return list, nil
}

// Update 调整绑定的优先级、权重与启停
func (l *KBLogic) Update(id int64, priority int, weight float64, enabled bool) error {
	if weight < 0 {
		return errors.New("KBLogic.Update", "weight must be >= 0", nil).Code(http.StatusBadRequest)
	}
	if err := l.core.Store().AppKBStore().Update(l.ctx, id, priority, weight, enabled); err != nil {
		return errors.New("KBLogic.Update.AppKBStore.Update", "internal error", err)
	}
	return nil
}

// Unbind 删除绑定
func (l *KBLogic) Unbind(id int64) error {
	if err := l.core.Store().AppKBStore().Delete(l.ctx, id); err != nil {
		return errors.New("KBLogic.Unbind.AppKBStore.Delete", "internal error", err)
	}
	return nil
}
