package sqlstore

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/docray-ai/docray/pkg/utils"
)

type SqlCommons interface {
	GetTable(...interface{}) string
}

type ConnectConfig interface {
	FormatDSN() string
}

// SqlProvider 持有主库与若干只读副本连接，读写分离。
type SqlProvider struct {
	master   *sqlx.DB
	replicas []*sqlx.DB
	dbname   string
}

type TransactionKey struct{}

func (s *SqlProvider) GetTxFromCtx(ctx context.Context) *sqlx.Tx {
	if driver, ok := ctx.Value(TransactionKey{}).(*sqlx.Tx); ok {
		return driver
	}
	return nil
}

func (s *SqlProvider) GetMaster() *sqlx.DB {
	return s.master
}

func (s *SqlProvider) GetReplica() *sqlx.DB {
	return s.replicas[utils.Random(0, len(s.replicas)-1)]
}

// Transaction 在 ctx 中携带事务执行 next，嵌套调用时复用外层事务。
func (s *SqlProvider) Transaction(ctx context.Context, next func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, ok := ctx.Value(TransactionKey{}).(*sqlx.Tx); ok {
		return next(ctx)
	}

	var (
		tx  *sqlx.Tx
		err error
	)
	if tx, err = s.GetMaster().BeginTxx(ctx, nil); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil || err != nil {
			slog.Error("transaction rollbacked", slog.Any("recover", r), slog.Any("error", err))
			_ = tx.Rollback()
			return
		}
	}()

	if err = next(context.WithValue(ctx, TransactionKey{}, tx)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SqlProvider) initConnection(conf ConnectConfig) *sqlx.DB {
	return sqlx.MustOpen("postgres", conf.FormatDSN())
}

func MustSetupProvider(m ConnectConfig, s ...ConnectConfig) *SqlProvider {
	provider := &SqlProvider{}
	provider.master = provider.initConnection(m)

	if len(s) == 0 {
		s = append(s, m)
	}

	for _, v := range s {
		provider.replicas = append(provider.replicas, provider.initConnection(v))
	}

	return provider
}

func (s *SqlProvider) GetDBName() (string, error) {
	if s.dbname == "" {
		var dbName string
		if err := s.GetMaster().QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
			return "", err
		}
		s.dbname = dbName
	}

	return s.dbname, nil
}
