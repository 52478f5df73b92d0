package training_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/artifact"
	"github.com/modestprophet/gonzo-pit-strategy/config"
	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"
	"github.com/modestprophet/gonzo-pit-strategy/service"
	"github.com/modestprophet/gonzo-pit-strategy/training"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	// 内存库跑测试，不依赖外部 mysql/redis
	config.AppConfig = &config.Config{
		DB:  config.DBConfig{Driver: "sqlite", Path: "file::memory:?cache=shared"},
		Log: config.LogConfig{Path: filepath.Join(os.TempDir(), "gonzo_training_test.log")},
	}

	if err := db.InitDB(); err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func newTestRunner(t *testing.T) *training.Runner {
	t.Helper()
	return training.NewRunnerWith(
		dao.NewTrainingRunDAO(),
		dao.NewTrainingMetricDAO(),
		dao.NewModelDAO(),
		dao.NewTrainingDataDAO(),
		artifact.NewStore(t.TempDir()),
		&service.RunProgressService{}, // redis 关闭，纯旁路
	)
}

func quickRaw(maxEpochs int) map[string]interface{} {
	raw := denseRaw()
	raw["max_epochs"] = maxEpochs
	raw["exclude_columns"] = []interface{}{"race_id"}
	raw["model"] = map[string]interface{}{
		"type":          "dense",
		"hidden_layers": []interface{}{8},
		"dropout_rate":  0.0,
	}
	return raw
}

func countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	assert.NoError(t, db.DB.Model(model).Count(&n).Error)
	return n
}

func TestRunEndToEnd(t *testing.T) {
	runner := newTestRunner(t)
	table := syntheticTable(60)
	cfg := mustParse(t, quickRaw(2))

	result, err := runner.Run(context.Background(), cfg, table)
	assert.NoError(t, err, "experiment should complete")
	assert.NotZero(t, result.RunID)
	assert.NotZero(t, result.ModelID)
	assert.Equal(t, 2, result.EpochsCompleted)
	assert.Contains(t, result.ModelVersion, "dense_", "version carries the architecture tag")
	assert.Contains(t, result.FinalMetrics, "loss")
	assert.Contains(t, result.FinalMetrics, "mae")

	// 运行行：COMPLETED，有结束时间
	run, err := dao.NewTrainingRunDAO().FindByID(context.Background(), result.RunID)
	assert.NoError(t, err)
	assert.Equal(t, entity.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.EndTime)
	assert.Equal(t, 2, run.EpochsCompleted)
	assert.Equal(t, result.ModelID, run.ModelID, "run row links to its model row")
	assert.NotEmpty(t, run.Config, "run row carries the config snapshot")

	// 模型行：READY，有产出物路径
	model, err := dao.NewModelDAO().FindByID(context.Background(), result.ModelID)
	assert.NoError(t, err)
	assert.Equal(t, entity.ModelStatusReady, model.Status)
	assert.Equal(t, result.ModelVersion, model.Version)
	assert.Equal(t, "dense", model.Architecture)
	assert.FileExists(t, model.ArtifactPath, "artifact path points at the weights file")

	// 指标行：2 个 epoch × (train loss/mae + val loss/mae) + 2 条收尾
	metrics, err := dao.NewTrainingMetricDAO().FindByRun(context.Background(), result.RunID, entity.QueryParams{})
	assert.NoError(t, err)
	assert.Len(t, metrics, 10, "per-epoch plus final metrics")

	finals, err := dao.NewTrainingMetricDAO().FindByRun(context.Background(), result.RunID, entity.QueryParams{FinalOnly: true})
	assert.NoError(t, err)
	assert.Len(t, finals, 2, "loss and mae on the test split")
	for _, mrow := range finals {
		assert.Equal(t, entity.SplitTest, mrow.SplitType)
		assert.Equal(t, entity.FinalEpoch, mrow.Epoch)
	}
}

func TestRunDataErrorLeavesNoRows(t *testing.T) {
	runner := newTestRunner(t)
	table := syntheticTable(30)

	raw := quickRaw(2)
	raw["target_column"] = "podium_position" // 表里没有
	cfg := mustParse(t, raw)

	runsBefore := countRows(t, &entity.TrainingRun{})
	modelsBefore := countRows(t, &entity.ModelRecord{})

	_, err := runner.Run(context.Background(), cfg, table)
	var derr *training.DataError
	assert.True(t, errors.As(err, &derr), "bad data config fails before any persistence")

	assert.Equal(t, runsBefore, countRows(t, &entity.TrainingRun{}), "no run row for a data error")
	assert.Equal(t, modelsBefore, countRows(t, &entity.ModelRecord{}), "no model row for a data error")
}

func TestRunFailureMarksRunFailed(t *testing.T) {
	cfg := mustParse(t, quickRaw(2))

	// 直接走 tracker 的失败路径
	tracker := training.NewRunTracker(
		dao.NewTrainingRunDAO(),
		dao.NewTrainingMetricDAO(),
		dao.NewModelDAO(),
		artifact.NewStore(t.TempDir()),
		&service.RunProgressService{},
	)
	runID, modelID, err := tracker.OnRunStart(context.Background(), cfg, "dense_test_failure", "")
	assert.NoError(t, err)

	tracker.OnEpochEnd(context.Background(), 0, map[string]float64{"loss": 3.0, "mae": 1.5})
	tracker.OnRunFailed(context.Background(), errors.New("training failed: boom"))

	run, err := dao.NewTrainingRunDAO().FindByID(context.Background(), runID)
	assert.NoError(t, err)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.NotNil(t, run.EndTime, "failed run gets an end time")
	assert.Equal(t, 1, run.EpochsCompleted, "epochs seen before the failure are recorded")
	assert.Contains(t, run.ErrorSummary, "boom")

	// 模型行停留在 PLACEHOLDER，读方知道产出物不可用
	model, err := dao.NewModelDAO().FindByID(context.Background(), modelID)
	assert.NoError(t, err)
	assert.Equal(t, entity.ModelStatusPlaceholder, model.Status)
	assert.Empty(t, model.ArtifactPath)

	// 失败后的二次收尾不生效
	tracker.OnRunFailed(context.Background(), errors.New("second failure"))
	run, err = dao.NewTrainingRunDAO().FindByID(context.Background(), runID)
	assert.NoError(t, err)
	assert.Contains(t, run.ErrorSummary, "boom", "terminal state is written once")
}

func TestRunSweepEndToEnd(t *testing.T) {
	runner := newTestRunner(t)
	table := syntheticTable(60)

	results, err := runner.RunSweep(context.Background(), quickRaw(1), map[string][]interface{}{
		"learning_rate": {0.01, 0.001},
	}, table)
	assert.NoError(t, err, "sweep should complete")
	assert.Len(t, results, 2, "one result per grid point")

	// 两次运行共享同一个 sweep_id
	runA, err := dao.NewTrainingRunDAO().FindByID(context.Background(), results[0].RunID)
	assert.NoError(t, err)
	runB, err := dao.NewTrainingRunDAO().FindByID(context.Background(), results[1].RunID)
	assert.NoError(t, err)
	assert.NotEmpty(t, runA.SweepID)
	assert.Equal(t, runA.SweepID, runB.SweepID, "sweep members share the batch id")

	runs, total, err := dao.NewTrainingRunDAO().FindAll(context.Background(), entity.QueryParams{SweepID: runA.SweepID})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs, 2)

	// sweep 结束后 runner 不再携带批次ID
	assert.Empty(t, runner.SweepID, "sweep id is cleared after the sweep")
}

func TestRunSweepAllInvalid(t *testing.T) {
	runner := newTestRunner(t)
	table := syntheticTable(30)

	_, err := runner.RunSweep(context.Background(), quickRaw(1), map[string][]interface{}{
		"learning_rate": {-1.0, -2.0},
	}, table)
	assert.Error(t, err, "a sweep with no valid entries should fail")
}
