package types

// KBBinding 应用与知识库的绑定关系，决定检索预算的拆分。
type KBBinding struct {
	ID          int64   `json:"id" db:"id"`
	WorkspaceID string  `json:"workspace_id" db:"workspace_id"`
	AppID       string  `json:"app_id" db:"app_id"`
	KBID        string  `json:"kb_id" db:"kb_id"`
	Priority    int     `json:"priority" db:"priority"` // 越小越优先
	Weight      float64 `json:"weight" db:"weight"`     // >= 0
	Enabled     bool    `json:"enabled" db:"enabled"`
	CreatedAt   int64   `json:"created_at" db:"created_at"`
}

// KBAllocation 按权重拆分后单个知识库分到的检索额度，请求内有效，不落库。
type KBAllocation struct {
	KBID     string  `json:"kb_id"`
	TopK     int     `json:"top_k"`
	Weight   float64 `json:"weight"`
	Priority int     `json:"priority"`
}
