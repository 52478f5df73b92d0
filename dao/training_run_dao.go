package dao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"

	"gorm.io/gorm"
)

type TrainingRunDAO struct {
	DB *gorm.DB
}

func NewTrainingRunDAO() *TrainingRunDAO {
	return &TrainingRunDAO{
		DB: db.DB,
	}
}

// Save 保存一条训练运行记录（落库时即为 RUNNING）。
func (d *TrainingRunDAO) Save(ctx context.Context, run *entity.TrainingRun) error {
	logger := daoLogger().With("dao", "TrainingRunDAO", "method", "Save")
	if run == nil {
		logger.Warn("save training run skipped: run is nil")
		return ErrNilEntity
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		logger.Error("save training run failed: with context", "error", err)
		return fmt.Errorf("save training run failed: %w", err)
	}
	if err := dbConn.Create(run).Error; err != nil {
		logger.Error("save training run failed: db create", "error", err)
		return fmt.Errorf("save training run failed: %w", err)
	}
	logger.Info("save training run success", "id", run.ID, "model_id", run.ModelID)
	return nil
}

// Finish 把 RUNNING 的运行翻到终态。终态只写一次：
// WHERE status = RUNNING 保证重复调用与并发调用都不会二次改写。
func (d *TrainingRunDAO) Finish(ctx context.Context, id uint, status string, epochsCompleted int, errorSummary string) error {
	logger := daoLogger().With("dao", "TrainingRunDAO", "method", "Finish")
	if id == 0 {
		return ErrInvalidID
	}
	switch status {
	case entity.RunStatusCompleted, entity.RunStatusFailed, entity.RunStatusCancelled:
	default:
		return fmt.Errorf("finish training run failed: %q is not a terminal status", status)
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return fmt.Errorf("finish training run failed: %w", err)
	}

	now := time.Now()
	result := dbConn.Model(&entity.TrainingRun{}).
		Where("id = ? AND status = ?", id, entity.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":           status,
			"end_time":         &now,
			"epochs_completed": epochsCompleted,
			"error_summary":    errorSummary,
		})
	if result.Error != nil {
		logger.Error("finish training run failed: db update", "id", id, "error", result.Error)
		return fmt.Errorf("finish training run failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Warn("finish training run skipped: already terminal", "id", id, "status", status)
		return ErrRunTerminal
	}
	logger.Info("finish training run success", "id", id, "status", status, "epochs_completed", epochsCompleted)
	return nil
}

// FindByID 根据主键查询单条训练运行记录。
func (d *TrainingRunDAO) FindByID(ctx context.Context, id uint) (*entity.TrainingRun, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, fmt.Errorf("find training run by id failed: %w", err)
	}

	var run entity.TrainingRun
	err = dbConn.First(&run, id).Error
	return &run, err
}

// FindAll 按查询参数分页获取训练运行列表与总数。
func (d *TrainingRunDAO) FindAll(ctx context.Context, params entity.QueryParams) ([]entity.TrainingRun, int64, error) {
	var runs []entity.TrainingRun
	var total int64

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("find training runs failed: %w", err)
	}

	dbConn = dbConn.Model(&entity.TrainingRun{})

	if status := strings.TrimSpace(params.Status); status != "" {
		dbConn = dbConn.Where("status = ?", status)
	}
	if params.ModelID != nil {
		dbConn = dbConn.Where("model_id = ?", *params.ModelID)
	}
	if sweepID := strings.TrimSpace(params.SweepID); sweepID != "" {
		dbConn = dbConn.Where("sweep_id = ?", sweepID)
	}

	err = dbConn.Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("count training runs failed: %w", err)
	}

	offset, limit := pagination(params)
	err = dbConn.Order("id DESC").Offset(offset).Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query training runs failed: %w", err)
	}

	return runs, total, err
}

// FindBestRun 按某个测试集收尾指标挑当前最优的 COMPLETED 运行。
// ascending 为 true 表示指标越小越好（loss/mae 这类）。
func (d *TrainingRunDAO) FindBestRun(ctx context.Context, metricName string, ascending bool) (*entity.TrainingRun, float64, error) {
	if strings.TrimSpace(metricName) == "" {
		return nil, 0, fmt.Errorf("find best run failed: metric name is empty")
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("find best run failed: %w", err)
	}

	order := "m.metric_value DESC"
	if ascending {
		order = "m.metric_value ASC"
	}

	var row struct {
		RunID       uint
		MetricValue float64
	}
	err = dbConn.
		Table("gonzo_training_metrics AS m").
		Select("m.run_id AS run_id, m.metric_value AS metric_value").
		Joins("JOIN gonzo_training_runs AS r ON r.id = m.run_id").
		Where("r.status = ?", entity.RunStatusCompleted).
		Where("m.epoch = ? AND m.split_type = ? AND m.metric_name = ?",
			entity.FinalEpoch, entity.SplitTest, metricName).
		Order(order).
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, 0, fmt.Errorf("find best run failed: %w", err)
	}
	if row.RunID == 0 {
		return nil, 0, gorm.ErrRecordNotFound
	}

	run, err := d.FindByID(ctx, row.RunID)
	if err != nil {
		return nil, 0, err
	}
	return run, row.MetricValue, nil
}

// MarkStaleRunning 把超过 cutoff 还停在 RUNNING 的运行标成 FAILED。
// 进程被 kill 会留下孤儿 RUNNING 行，这里给外部巡检任务一个收口。
func (d *TrainingRunDAO) MarkStaleRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	logger := daoLogger().With("dao", "TrainingRunDAO", "method", "MarkStaleRunning")

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return 0, fmt.Errorf("mark stale running failed: %w", err)
	}

	now := time.Now()
	result := dbConn.Model(&entity.TrainingRun{}).
		Where("status = ? AND start_time < ?", entity.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        entity.RunStatusFailed,
			"end_time":      &now,
			"error_summary": "reconciled: stale RUNNING row",
		})
	if result.Error != nil {
		logger.Error("mark stale running failed: db update", "error", result.Error)
		return 0, fmt.Errorf("mark stale running failed: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Info("mark stale running success", "reconciled", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
