package service

import (
	"context"
	"fmt"

	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/entity"
)

// ExperimentQueryService 面向「对比运行、挑最优」的只读查询。
type ExperimentQueryService struct {
	runDAO    *dao.TrainingRunDAO
	metricDAO *dao.TrainingMetricDAO
	modelDAO  *dao.ModelDAO
}

func NewExperimentQueryService() *ExperimentQueryService {
	return &ExperimentQueryService{
		runDAO:    dao.NewTrainingRunDAO(),
		metricDAO: dao.NewTrainingMetricDAO(),
		modelDAO:  dao.NewModelDAO(),
	}
}

// GetAllRuns 分页列出训练运行。
func (s *ExperimentQueryService) GetAllRuns(ctx context.Context, params entity.QueryParams) (*entity.PageResult, error) {
	runs, total, err := s.runDAO.FindAll(ctx, params)
	if err != nil {
		return nil, err
	}
	return &entity.PageResult{Total: total, List: runs}, nil
}

// GetRun 单条运行详情。
func (s *ExperimentQueryService) GetRun(ctx context.Context, id uint) (*entity.TrainingRun, error) {
	return s.runDAO.FindByID(ctx, id)
}

// GetRunMetrics 某次运行的指标行。
func (s *ExperimentQueryService) GetRunMetrics(ctx context.Context, runID uint, params entity.QueryParams) ([]entity.TrainingMetric, error) {
	return s.metricDAO.FindByRun(ctx, runID, params)
}

// BestRun 当前最优运行及其模型记录。指标默认越小越好，
// 本系统的评估指标（loss/mae）都是误差类。
type BestRun struct {
	Run         *entity.TrainingRun `json:"run"`
	Model       *entity.ModelRecord `json:"model"`
	MetricName  string              `json:"metric_name"`
	MetricValue float64             `json:"metric_value"`
}

// GetBestRun 按某个测试集收尾指标挑出最优的 COMPLETED 运行。
func (s *ExperimentQueryService) GetBestRun(ctx context.Context, metricName string) (*BestRun, error) {
	logger := serviceLogger().With("service", "ExperimentQueryService", "method", "GetBestRun")

	run, value, err := s.runDAO.FindBestRun(ctx, metricName, true)
	if err != nil {
		return nil, fmt.Errorf("get best run failed: %w", err)
	}

	model, err := s.modelDAO.FindByID(ctx, run.ModelID)
	if err != nil {
		return nil, fmt.Errorf("get best run failed: load model %d: %w", run.ModelID, err)
	}

	logger.Info("best run resolved", "run_id", run.ID, "metric", metricName, "value", value)
	return &BestRun{
		Run:         run,
		Model:       model,
		MetricName:  metricName,
		MetricValue: value,
	}, nil
}

// GetAllModels 分页列出模型记录。
func (s *ExperimentQueryService) GetAllModels(ctx context.Context, params entity.QueryParams) (*entity.PageResult, error) {
	records, total, err := s.modelDAO.FindAll(ctx, params)
	if err != nil {
		return nil, err
	}
	return &entity.PageResult{Total: total, List: records}, nil
}

// GetModelByVersion 按版本号取模型记录（推理侧加载入口）。
func (s *ExperimentQueryService) GetModelByVersion(ctx context.Context, version string) (*entity.ModelRecord, error) {
	return s.modelDAO.FindByVersion(ctx, version)
}
