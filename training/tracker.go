package training

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/artifact"
	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/neural"
	"github.com/modestprophet/gonzo-pit-strategy/service"

	"gorm.io/datatypes"
)

const valMetricPrefix = "val_"

// RunTracker 一次训练运行的生命周期记录：创建、状态翻转、
// 逐 epoch 指标、收尾指标与产出物登记。训练循环只在四个钩子点
// 调它，持久化细节全部收在这里。
//
// 状态机：RUNNING -> {COMPLETED | FAILED | CANCELLED}，终态只写一次。
// 每个 RUNNING 运行必须收到 OnRunEnd 与 OnRunFailed 中恰好一个，
// 这由编排方（Runner）的收尾逻辑保证，tracker 不自查。
type RunTracker struct {
	runDAO    *dao.TrainingRunDAO
	metricDAO *dao.TrainingMetricDAO
	modelDAO  *dao.ModelDAO
	store     *artifact.Store
	progress  *service.RunProgressService

	runID        uint
	modelID      uint
	modelVersion string
	sweepID      string
	epochsSeen   int
}

func NewRunTracker(
	runDAO *dao.TrainingRunDAO,
	metricDAO *dao.TrainingMetricDAO,
	modelDAO *dao.ModelDAO,
	store *artifact.Store,
	progress *service.RunProgressService,
) *RunTracker {
	return &RunTracker{
		runDAO:    runDAO,
		metricDAO: metricDAO,
		modelDAO:  modelDAO,
		store:     store,
		progress:  progress,
	}
}

func (t *RunTracker) RunID() uint          { return t.runID }
func (t *RunTracker) ModelID() uint        { return t.modelID }
func (t *RunTracker) ModelVersion() string { return t.modelVersion }

// OnRunStart 先建 PLACEHOLDER 模型行再建 RUNNING 运行行——
// 先有 model_id 才能满足外键，也才能在训练中途崩溃时归属指标。
// 这里的持久化失败是致命的：身份没有落库的运行后面没法引用。
func (t *RunTracker) OnRunStart(ctx context.Context, cfg ExperimentConfig, modelVersion, sweepID string) (runID, modelID uint, err error) {
	logger := trainingLogger().With("func", "OnRunStart", "model_version", modelVersion)

	cfgJSON, err := cfg.JSON()
	if err != nil {
		return 0, 0, fmt.Errorf("serialize config snapshot failed: %w", err)
	}

	description := cfg.Description
	if description == "" {
		description = fmt.Sprintf("%s model", cfg.Model.Type)
	}

	model := &entity.ModelRecord{
		Name:         "f1_pit_strategy_model",
		Version:      modelVersion,
		Status:       entity.ModelStatusPlaceholder,
		Architecture: cfg.Model.Type,
		Config:       datatypes.JSON(cfgJSON),
		Description:  &description,
	}
	if err := t.modelDAO.Save(ctx, model); err != nil {
		return 0, 0, fmt.Errorf("create placeholder model failed: %w", err)
	}

	run := &entity.TrainingRun{
		ModelID:   model.ID,
		SweepID:   sweepID,
		Status:    entity.RunStatusRunning,
		StartTime: time.Now(),
		Config:    datatypes.JSON(cfgJSON),
	}
	if err := t.runDAO.Save(ctx, run); err != nil {
		return 0, 0, fmt.Errorf("create training run failed: %w", err)
	}

	t.runID = run.ID
	t.modelID = model.ID
	t.modelVersion = modelVersion
	t.sweepID = sweepID

	logger.Info("training run created", "run_id", run.ID, "model_id", model.ID, "sweep_id", sweepID)
	t.progress.PublishStatus(ctx, run.ID, entity.RunStatusRunning)
	return run.ID, model.ID, nil
}

// OnEpochEnd 把一个 epoch 的指标整批落库。按 val_ 前缀分切分，
// 去掉前缀后每个 (指标, 切分) 一行。落库失败只告警不阻断训练：
// 单个 epoch 的指标是尽力而为，运行完整性由 run start/end 保证。
func (t *RunTracker) OnEpochEnd(ctx context.Context, epoch int, logs map[string]float64) {
	logger := trainingLogger().With("func", "OnEpochEnd", "run_id", t.runID, "epoch", epoch)
	if len(logs) == 0 {
		return
	}
	t.epochsSeen = epoch + 1

	now := time.Now()
	metrics := make([]entity.TrainingMetric, 0, len(logs))
	for name, value := range logs {
		split := entity.SplitTrain
		if strings.HasPrefix(name, valMetricPrefix) {
			split = entity.SplitValidation
			name = strings.TrimPrefix(name, valMetricPrefix)
		}
		metrics = append(metrics, entity.TrainingMetric{
			RunID:       t.runID,
			Epoch:       epoch,
			MetricName:  name,
			MetricValue: value,
			SplitType:   split,
			Timestamp:   now,
		})
	}

	if err := t.metricDAO.SaveBatch(ctx, metrics); err != nil {
		logger.Warn("epoch metric batch dropped", "error", err)
	}

	t.progress.PublishEpoch(ctx, t.runID, epoch, logs)
}

// OnRunEnd 收尾：测试集指标按 epoch = -1 落库，产出物落盘，
// 模型行翻 READY，运行行翻 COMPLETED。顺序固定，任何一步失败
// 都按致命处理交给编排方转 OnRunFailed。
func (t *RunTracker) OnRunEnd(ctx context.Context, finalMetrics map[string]float64, states []neural.ParamState, meta artifact.Metadata) error {
	logger := trainingLogger().With("func", "OnRunEnd", "run_id", t.runID)

	now := time.Now()
	metrics := make([]entity.TrainingMetric, 0, len(finalMetrics))
	for name, value := range finalMetrics {
		metrics = append(metrics, entity.TrainingMetric{
			RunID:       t.runID,
			Epoch:       entity.FinalEpoch,
			MetricName:  name,
			MetricValue: value,
			SplitType:   entity.SplitTest,
			Timestamp:   now,
		})
	}
	if err := t.metricDAO.SaveBatch(ctx, metrics); err != nil {
		return fmt.Errorf("persist final metrics failed: %w", err)
	}

	meta.FinalMetrics = finalMetrics
	artifactPath, err := t.store.Save(t.modelVersion, states, meta)
	if err != nil {
		return fmt.Errorf("save model artifact failed: %w", err)
	}

	metricsJSON, err := finalMetricsJSON(finalMetrics)
	if err != nil {
		return err
	}
	if err := t.modelDAO.MarkReady(ctx, t.modelID, artifactPath, metricsJSON); err != nil {
		return fmt.Errorf("finalize model record failed: %w", err)
	}

	if err := t.runDAO.Finish(ctx, t.runID, entity.RunStatusCompleted, t.epochsSeen, ""); err != nil {
		return fmt.Errorf("complete training run failed: %w", err)
	}

	logger.Info("training run completed", "epochs_completed", t.epochsSeen, "artifact_path", artifactPath)
	t.progress.PublishStatus(ctx, t.runID, entity.RunStatusCompleted)
	return nil
}

// OnRunFailed 把运行翻 FAILED 并记下错误摘要。模型行保持
// PLACEHOLDER，读方据此知道这个产出物不可用。
func (t *RunTracker) OnRunFailed(ctx context.Context, cause error) {
	logger := trainingLogger().With("func", "OnRunFailed", "run_id", t.runID)
	if t.runID == 0 {
		return
	}

	summary := ""
	if cause != nil {
		summary = cause.Error()
	}
	if err := t.runDAO.Finish(ctx, t.runID, entity.RunStatusFailed, t.epochsSeen, summary); err != nil {
		logger.Error("mark run failed did not persist", "error", err)
		return
	}
	logger.Info("training run marked failed", "cause", summary)
	t.progress.PublishStatus(ctx, t.runID, entity.RunStatusFailed)
}

// EpochCallback 把 OnEpochEnd 适配成训练循环的回调。
// 永远返回 nil：指标持久化问题不该中止训练。
func (t *RunTracker) EpochCallback(ctx context.Context) neural.EpochCallback {
	return func(epoch int, logs map[string]float64) error {
		t.OnEpochEnd(ctx, epoch, logs)
		return nil
	}
}

func finalMetricsJSON(metrics map[string]float64) (datatypes.JSON, error) {
	b, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("serialize final metrics failed: %w", err)
	}
	return datatypes.JSON(b), nil
}
