package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"freightflow/backend/internal/config"
)

// psql 使用 $n 占位符的查询构造器
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Querier 同时由 *pgxpool.Pool 与测试替身实现
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Client 封装 PostgreSQL 连接池，供详细健康检查读取系统目录统计
type Client struct {
	db   Querier
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewWithQuerier 使用现成的查询接口创建客户端（无连接池统计）
func NewWithQuerier(db Querier, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{db: db, log: log}
}

// DatabaseStats 当前数据库的目录统计
type DatabaseStats struct {
	Backends     int64            `json:"backends"`
	Commits      int64            `json:"commits"`
	Rollbacks    int64            `json:"rollbacks"`
	SizeBytes    int64            `json:"sizeBytes"`
	TableRows    map[string]int64 `json:"tableRows"`
	AcquiredConn int32            `json:"acquiredConns"`
	IdleConn     int32            `json:"idleConns"`
	TotalConn    int32            `json:"totalConns"`
}

// trackedTables 需要统计行数的业务表
var trackedTables = []string{"activities", "in_app_notifications", "shipments"}

// New 创建新的 PostgreSQL 客户端
func New(cfg *config.DatabaseConfig, log *zap.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	// 目录查询只需要少量连接
	poolConfig.MaxConns = 2
	poolConfig.MinConns = 0
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to PostgreSQL catalog pool")

	return &Client{
		db:   pool,
		pool: pool,
		log:  log,
	}, nil
}

// Close 关闭数据库连接池
func (c *Client) Close() {
	if c.pool == nil {
		return
	}
	c.pool.Close()
	c.log.Info("PostgreSQL catalog pool closed")
}

// Ping 测试数据库连接
func (c *Client) Ping(ctx context.Context) error {
	return c.db.Ping(ctx)
}

// DatabaseStatsQuery 构造 pg_stat_database 查询
func DatabaseStatsQuery() (string, []any, error) {
	return psql.
		Select("numbackends", "xact_commit", "xact_rollback", "pg_database_size(datname)").
		From("pg_stat_database").
		Where("datname = current_database()").
		ToSql()
}

// TableRowsQuery 构造 pg_stat_user_tables 行数估算查询
func TableRowsQuery() (string, []any, error) {
	return psql.
		Select("relname", "n_live_tup").
		From("pg_stat_user_tables").
		Where(sq.Eq{"relname": trackedTables}).
		OrderBy("relname").
		ToSql()
}

// Stats 读取目录统计与连接池状态
func (c *Client) Stats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{TableRows: make(map[string]int64, len(trackedTables))}

	query, args, err := DatabaseStatsQuery()
	if err != nil {
		return nil, err
	}
	if err := c.db.QueryRow(ctx, query, args...).Scan(
		&stats.Backends, &stats.Commits, &stats.Rollbacks, &stats.SizeBytes,
	); err != nil {
		return nil, fmt.Errorf("query pg_stat_database: %w", err)
	}

	query, args, err = TableRowsQuery()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pg_stat_user_tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			n    int64
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		stats.TableRows[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if c.pool == nil {
		return stats, nil
	}
	poolStat := c.pool.Stat()
	stats.AcquiredConn = poolStat.AcquiredConns()
	stats.IdleConn = poolStat.IdleConns()
	stats.TotalConn = poolStat.TotalConns()
	return stats, nil
}
