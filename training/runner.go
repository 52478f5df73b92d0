package training

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/artifact"
	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/neural"
	"github.com/modestprophet/gonzo-pit-strategy/service"
)

// RunResult 一次实验的结果摘要。
type RunResult struct {
	RunID           uint
	ModelID         uint
	ModelVersion    string
	FinalMetrics    map[string]float64
	EpochsCompleted int
	StoppedEarly    bool
}

// Runner 实验编排器：数据解析 -> 建网 -> 训练 -> 评估 -> 收尾，
// 持久化全部走 RunTracker 的钩子，这里只排顺序。
// sweep 驱动方对它逐项调用，严格串行。
type Runner struct {
	runDAO    *dao.TrainingRunDAO
	metricDAO *dao.TrainingMetricDAO
	modelDAO  *dao.ModelDAO
	dataDAO   *dao.TrainingDataDAO
	store     *artifact.Store
	progress  *service.RunProgressService

	// 属于同一次网格搜索的运行共享这个ID；单次运行为空
	SweepID string
}

func NewRunner(store *artifact.Store) *Runner {
	return &Runner{
		runDAO:    dao.NewTrainingRunDAO(),
		metricDAO: dao.NewTrainingMetricDAO(),
		modelDAO:  dao.NewModelDAO(),
		dataDAO:   dao.NewTrainingDataDAO(),
		store:     store,
		progress:  service.NewRunProgressService(),
	}
}

// NewRunnerWith 全依赖注入的构造（测试用）。
func NewRunnerWith(
	runDAO *dao.TrainingRunDAO,
	metricDAO *dao.TrainingMetricDAO,
	modelDAO *dao.ModelDAO,
	dataDAO *dao.TrainingDataDAO,
	store *artifact.Store,
	progress *service.RunProgressService,
) *Runner {
	return &Runner{
		runDAO:    runDAO,
		metricDAO: metricDAO,
		modelDAO:  modelDAO,
		dataDAO:   dataDAO,
		store:     store,
		progress:  progress,
	}
}

// RunFromStore 从配置的来源表读数据后执行一次实验。
func (r *Runner) RunFromStore(ctx context.Context, cfg ExperimentConfig, sourceTable string) (*RunResult, error) {
	table, err := r.dataDAO.LoadTable(ctx, sourceTable)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, cfg, table)
}

// Run 执行一次完整实验。数据问题在任何 run/model 行落库之前
// 直接返回；OnRunStart 之后的任何失败都先转成 OnRunFailed 再上抛，
// 保证不会留下卡在 RUNNING 的运行。
func (r *Runner) Run(ctx context.Context, cfg ExperimentConfig, table *entity.SourceTable) (result *RunResult, err error) {
	logger := trainingLogger().With("func", "Run", "model_type", cfg.Model.Type)

	logger.Info("resolving training data", "table", table.Name)
	resolved, err := Resolve(table, cfg)
	if err != nil {
		return nil, err
	}

	// 特征列顺序进快照，保存的模型自带输入契约
	cfg = cfg.WithFeatureColumns(resolved.FeatureColumns)
	inputWidth := len(resolved.FeatureColumns)
	outputWidth := 1

	logger.Info("building model", "input_width", inputWidth, "output_width", outputWidth)
	net := BuildNetwork(cfg, inputWidth, outputWidth)

	start := time.Now()
	// 结构标签 + 起始时间戳：人可读、可排序、无需中心计数器
	modelVersion := fmt.Sprintf("%s_%s", cfg.Model.Type, start.Format("20060102_150405"))

	tracker := NewRunTracker(r.runDAO, r.metricDAO, r.modelDAO, r.store, r.progress)
	runID, modelID, err := tracker.OnRunStart(ctx, cfg, modelVersion, r.SweepID)
	if err != nil {
		return nil, err
	}

	// OnRunStart 之后的 panic 也要先把运行标成 FAILED 再继续抛
	defer func() {
		if rec := recover(); rec != nil {
			tracker.OnRunFailed(ctx, fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
	}()

	opts := neural.FitOptions{
		Epochs:    cfg.MaxEpochs,
		BatchSize: cfg.BatchSize,
		Callbacks: []neural.EpochCallback{
			tracker.EpochCallback(ctx),
			ConsoleEpochCallback(),
		},
	}
	if resolved.Validation.Rows() > 0 {
		opts.XVal = resolved.Validation.X
		opts.YVal = resolved.Validation.Y
	}
	if cfg.EarlyStoppingPatience != nil {
		opts.Patience = *cfg.EarlyStoppingPatience
	}

	logger.Info("starting training", "run_id", runID, "max_epochs", cfg.MaxEpochs, "batch_size", cfg.BatchSize)
	history, err := net.Fit(resolved.Train.X, resolved.Train.Y, opts)
	if err != nil {
		failure := fmt.Errorf("training failed: %w", err)
		tracker.OnRunFailed(ctx, failure)
		return nil, failure
	}

	logger.Info("evaluating on test split", "rows", resolved.Test.Rows())
	finalMetrics := net.Evaluate(resolved.Test.X, resolved.Test.Y)

	cfgJSON, err := cfg.JSON()
	if err != nil {
		failure := fmt.Errorf("serialize config snapshot failed: %w", err)
		tracker.OnRunFailed(ctx, failure)
		return nil, failure
	}
	meta := artifact.Metadata{
		ModelName:    "f1_pit_strategy_model",
		ModelVersion: modelVersion,
		Description:  cfg.Description,
		Architecture: cfg.Model.Type,
		Tags:         cfg.Tags,
		Config:       json.RawMessage(cfgJSON),
	}
	if err := tracker.OnRunEnd(ctx, finalMetrics, net.StateDict(), meta); err != nil {
		tracker.OnRunFailed(ctx, err)
		return nil, err
	}

	logger.Info("experiment finished",
		"run_id", runID,
		"model_version", modelVersion,
		"epochs_completed", history.EpochsCompleted,
		"stopped_early", history.StoppedEarly,
		"test_loss", finalMetrics[neural.MetricLoss],
	)

	return &RunResult{
		RunID:           runID,
		ModelID:         modelID,
		ModelVersion:    modelVersion,
		FinalMetrics:    finalMetrics,
		EpochsCompleted: history.EpochsCompleted,
		StoppedEarly:    history.StoppedEarly,
	}, nil
}

// RunSweep 展开网格并严格串行执行。坏组合与失败的运行都记日志
// 后继续，单个坏点不拖垮整个网格。
func (r *Runner) RunSweep(ctx context.Context, base map[string]interface{}, axes map[string][]interface{}, table *entity.SourceTable) ([]*RunResult, error) {
	logger := trainingLogger().With("func", "RunSweep")

	sweep := ExpandSweep(base, axes)
	for _, bad := range sweep.Invalid {
		logger.Error("sweep combination invalid, skipping",
			"index", bad.Index,
			"overrides", fmt.Sprintf("%v", bad.Overrides),
			"error", bad.Err,
		)
	}
	if len(sweep.Entries) == 0 {
		return nil, fmt.Errorf("sweep produced no valid configurations (%d invalid)", len(sweep.Invalid))
	}

	r.SweepID = sweep.ID
	defer func() { r.SweepID = "" }()

	logger.Info("sweep expanded", "sweep_id", sweep.ID, "entries", len(sweep.Entries), "invalid", len(sweep.Invalid))

	var results []*RunResult
	failures := 0
	for _, entry := range sweep.Entries {
		entryLogger := logger.With("sweep_id", sweep.ID, "index", entry.Index)
		entryLogger.Info("sweep entry starting", "overrides", fmt.Sprintf("%v", entry.Overrides))

		res, err := r.Run(ctx, entry.Config, table)
		if err != nil {
			failures++
			cfgJSON, _ := entry.Config.JSON()
			entryLogger.Error("sweep entry failed, continuing",
				"config", string(cfgJSON),
				"error", err,
			)
			continue
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("all %d sweep entries failed", failures)
	}
	return results, nil
}
