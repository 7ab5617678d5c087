package sqlstore

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/docray-ai/docray/app/store"
	"github.com/docray-ai/docray/pkg/register"
	"github.com/docray-ai/docray/pkg/sqlstore"
	"github.com/docray-ai/docray/pkg/types"
)

func init() {
	sq.StatementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

var provider = &Provider{
	stores: &Stores{},
}

func GetProvider() *Provider {
	return provider
}

type Provider struct {
	*sqlstore.SqlProvider
	stores *Stores
}

type Stores struct {
	store.PageStore
	store.ChunkStore
	store.JobStore
	store.AppKBStore
	store.RetrievalEventStore
}

type RegisterKey struct{}

func MustSetup(m sqlstore.ConnectConfig, s ...sqlstore.ConnectConfig) func() *Provider {

	provider.SqlProvider = sqlstore.MustSetupProvider(m, s...)

	for _, f := range register.ResolveFuncHandlers[*Provider](RegisterKey{}) {
		f(provider)
	}

	return func() *Provider {
		return provider
	}
}

// Install 初始化所有数据表
func (p *Provider) Install() error {
	// 首先启用必要的数据库扩展
	if err := p.enableExtensions(); err != nil {
		return err
	}

	// 确保迁移记录表存在
	if err := p.ensureMigrationTable(); err != nil {
		return err
	}

	files, err := CreateTableFiles.ReadDir(".")
	if err != nil {
		return err
	}

	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			if executed, err := p.isFileExecuted(file.Name()); err != nil {
				return err
			} else if executed {
				continue
			}

			sql, err := CreateTableFiles.ReadFile(file.Name())
			if err != nil {
				return err
			}

			if _, err = p.SqlProvider.GetMaster().Exec(string(sql)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", file.Name(), err)
			}

			if err = p.markFileExecuted(file.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

// enableExtensions 启用必要的数据库扩展
func (p *Provider) enableExtensions() error {
	extensions := []string{
		"CREATE EXTENSION IF NOT EXISTS vector;", // pgvector 扩展，用于向量操作
	}

	for _, ext := range extensions {
		if _, err := p.SqlProvider.GetMaster().Exec(ext); err != nil {
			return fmt.Errorf("failed to enable extension: %w\nSQL: %s", err, ext)
		}
	}
	return nil
}

// ensureMigrationTable 确保迁移记录表存在
func (p *Provider) ensureMigrationTable() error {
	createTableSQL := `
CREATE TABLE IF NOT EXISTS ` + types.TABLE_PREFIX + `schema_migrations (
    filename VARCHAR(255) PRIMARY KEY,
    executed_at BIGINT NOT NULL
);`
	_, err := p.SqlProvider.GetMaster().Exec(createTableSQL)
	return err
}

// isFileExecuted 检查文件是否已经执行过
func (p *Provider) isFileExecuted(filename string) (bool, error) {
	var count int
	err := p.SqlProvider.GetReplica().Get(&count,
		"SELECT COUNT(*) FROM "+types.TABLE_PREFIX+"schema_migrations WHERE filename = $1", filename)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// markFileExecuted 标记文件为已执行
func (p *Provider) markFileExecuted(filename string) error {
	_, err := p.SqlProvider.GetMaster().Exec(
		"INSERT INTO "+types.TABLE_PREFIX+"schema_migrations (filename, executed_at) VALUES ($1, $2) ON CONFLICT (filename) DO NOTHING",
		filename, time.Now().Unix())
	return err
}

func (p *Provider) PageStore() store.PageStore {
	return p.stores.PageStore
}

func (p *Provider) ChunkStore() store.ChunkStore {
	return p.stores.ChunkStore
}

func (p *Provider) JobStore() store.JobStore {
	return p.stores.JobStore
}

func (p *Provider) AppKBStore() store.AppKBStore {
	return p.stores.AppKBStore
}

func (p *Provider) RetrievalEventStore() store.RetrievalEventStore {
	return p.stores.RetrievalEventStore
}
