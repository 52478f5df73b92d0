package dao

import (
	"context"
	"fmt"
	"regexp"

	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"

	"gorm.io/gorm"
)

type TrainingDataDAO struct {
	DB *gorm.DB
}

func NewTrainingDataDAO() *TrainingDataDAO {
	return &TrainingDataDAO{
		DB: db.DB,
	}
}

// 表名来自配置文件，不来自请求方，这里仍然只放行常规标识符
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// LoadTable 全量读取训练数据表。上游是只读协作方，schema 不受控，
// 所以按 rows.Columns() 动态取列。
func (d *TrainingDataDAO) LoadTable(ctx context.Context, tableName string) (*entity.SourceTable, error) {
	logger := daoLogger().With("dao", "TrainingDataDAO", "method", "LoadTable")
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("load source table failed: invalid table name %q", tableName)
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		logger.Error("load source table failed: with context", "error", err)
		return nil, fmt.Errorf("load source table failed: %w", err)
	}

	rows, err := dbConn.Raw("SELECT * FROM " + tableName).Rows()
	if err != nil {
		logger.Error("load source table failed: query", "table", tableName, "error", err)
		return nil, fmt.Errorf("load source table failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("load source table failed: columns: %w", err)
	}

	table := &entity.SourceTable{
		Name:    tableName,
		Columns: columns,
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("load source table failed: scan: %w", err)
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load source table failed: rows: %w", err)
	}

	logger.Info("load source table success", "table", tableName, "rows", len(table.Rows), "columns", len(columns))
	return table, nil
}
