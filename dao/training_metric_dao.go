package dao

import (
	"context"
	"fmt"
	"strings"

	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"

	"gorm.io/gorm"
)

type TrainingMetricDAO struct {
	DB *gorm.DB
}

func NewTrainingMetricDAO() *TrainingMetricDAO {
	return &TrainingMetricDAO{
		DB: db.DB,
	}
}

// SaveBatch 在一个事务里写入一个 epoch 的全部指标行。
// 半个 epoch 的指标对外永远不可见：要么整批落库，要么整批回滚。
func (d *TrainingMetricDAO) SaveBatch(ctx context.Context, metrics []entity.TrainingMetric) error {
	logger := daoLogger().With("dao", "TrainingMetricDAO", "method", "SaveBatch")
	if len(metrics) == 0 {
		return nil
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		logger.Error("save metric batch failed: with context", "error", err)
		return fmt.Errorf("save metric batch failed: %w", err)
	}

	err = dbConn.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&metrics).Error
	})
	if err != nil {
		logger.Error("save metric batch failed: db create", "count", len(metrics), "error", err)
		return fmt.Errorf("save metric batch failed: %w", err)
	}
	return nil
}

// FindByRun 按运行ID查询指标行，可按指标名/数据切分过滤。
func (d *TrainingMetricDAO) FindByRun(ctx context.Context, runID uint, params entity.QueryParams) ([]entity.TrainingMetric, error) {
	if runID == 0 {
		return nil, ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, fmt.Errorf("find metrics by run failed: %w", err)
	}

	dbConn = dbConn.Model(&entity.TrainingMetric{}).Where("run_id = ?", runID)

	if name := strings.TrimSpace(params.MetricName); name != "" {
		dbConn = dbConn.Where("metric_name = ?", name)
	}
	if split := strings.TrimSpace(params.SplitType); split != "" {
		dbConn = dbConn.Where("split_type = ?", split)
	}
	if params.FinalOnly {
		dbConn = dbConn.Where("epoch = ?", entity.FinalEpoch)
	}

	var metrics []entity.TrainingMetric
	err = dbConn.Order("epoch ASC, id ASC").Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("find metrics by run failed: %w", err)
	}
	return metrics, nil
}

// CountByRun 统计某次运行的指标行数（测试与巡检用）。
func (d *TrainingMetricDAO) CountByRun(ctx context.Context, runID uint) (int64, error) {
	if runID == 0 {
		return 0, ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return 0, fmt.Errorf("count metrics by run failed: %w", err)
	}

	var total int64
	err = dbConn.Model(&entity.TrainingMetric{}).Where("run_id = ?", runID).Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("count metrics by run failed: %w", err)
	}
	return total, nil
}
