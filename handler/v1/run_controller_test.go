package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/entity"

	"github.com/stretchr/testify/assert"
)

// seedCompletedRun 落一组完整的 model + run + 收尾指标。
func seedCompletedRun(t *testing.T, testMAE float64) (*entity.TrainingRun, *entity.ModelRecord) {
	t.Helper()
	ctx := context.Background()

	model := &entity.ModelRecord{
		Name:         "finish_position_regressor",
		Version:      fmt.Sprintf("dense_%d", time.Now().UnixNano()),
		Status:       entity.ModelStatusReady,
		Architecture: "dense",
		ArtifactPath: "models/artifacts/x/weights.gob",
	}
	modelDAO := dao.NewModelDAO()
	assert.NoError(t, modelDAO.Save(ctx, model))

	runDAO := dao.NewTrainingRunDAO()
	run := &entity.TrainingRun{
		ModelID:   model.ID,
		Status:    entity.RunStatusRunning,
		StartTime: time.Now(),
	}
	assert.NoError(t, runDAO.Save(ctx, run))
	assert.NoError(t, runDAO.Finish(ctx, run.ID, entity.RunStatusCompleted, 5, ""))

	metricDAO := dao.NewTrainingMetricDAO()
	assert.NoError(t, metricDAO.SaveBatch(ctx, []entity.TrainingMetric{
		{RunID: run.ID, Epoch: 0, MetricName: "loss", MetricValue: 3.0, SplitType: entity.SplitTrain, Timestamp: time.Now()},
		{RunID: run.ID, Epoch: 0, MetricName: "mae", MetricValue: 1.8, SplitType: entity.SplitValidation, Timestamp: time.Now()},
		{RunID: run.ID, Epoch: entity.FinalEpoch, MetricName: "mae", MetricValue: testMAE, SplitType: entity.SplitTest, Timestamp: time.Now()},
	}))

	t.Cleanup(func() {
		_ = metricDAO.DB.Where("run_id = ?", run.ID).Delete(&entity.TrainingMetric{}).Error
		_ = runDAO.DB.Delete(&entity.TrainingRun{}, run.ID).Error
		_ = modelDAO.DB.Delete(&entity.ModelRecord{}, model.ID).Error
	})
	return run, model
}

func TestRunAPI(t *testing.T) {
	run, model := seedCompletedRun(t, 1.2)

	t.Run("List Runs", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/training-runs?page=1&page_size=10", nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var result entity.PageResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Total >= 1)
	})

	t.Run("Filter Runs By Status", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/training-runs?status=COMPLETED", nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var result entity.PageResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Total >= 1)
	})

	t.Run("Get Run", func(t *testing.T) {
		w := performRequest(testRouter, "GET", fmt.Sprintf("/v1/training-runs/%d", run.ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp entity.TrainingRun
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, run.ID, resp.ID)
		assert.Equal(t, model.ID, resp.ModelID)
		assert.Equal(t, entity.RunStatusCompleted, resp.Status)
	})

	t.Run("Get Run Not Found", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/training-runs/999999", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Get Run Bad ID", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/training-runs/abc", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Get Run Metrics", func(t *testing.T) {
		w := performRequest(testRouter, "GET", fmt.Sprintf("/v1/training-runs/%d/metrics", run.ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var metrics []entity.TrainingMetric
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
		assert.Len(t, metrics, 3)
	})

	t.Run("Get Run Final Metrics Only", func(t *testing.T) {
		w := performRequest(testRouter, "GET", fmt.Sprintf("/v1/training-runs/%d/metrics?final_only=true", run.ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var metrics []entity.TrainingMetric
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
		assert.Len(t, metrics, 1)
		assert.Equal(t, entity.SplitTest, metrics[0].SplitType)
	})

	t.Run("Get Run Progress Without Cache", func(t *testing.T) {
		// redis 未配置时进度接口明确降级
		w := performRequest(testRouter, "GET", fmt.Sprintf("/v1/training-runs/%d/progress", run.ID), nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestBestRunAPI(t *testing.T) {
	best, bestModel := seedCompletedRun(t, 0.5)
	seedCompletedRun(t, 2.5)

	w := performRequest(testRouter, "GET", "/v1/training-runs/best?metric=mae", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Run         *entity.TrainingRun `json:"run"`
		Model       *entity.ModelRecord `json:"model"`
		MetricName  string              `json:"metric_name"`
		MetricValue float64             `json:"metric_value"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, best.ID, resp.Run.ID, "run with the lowest test mae wins")
	assert.Equal(t, bestModel.ID, resp.Model.ID)
	assert.Equal(t, "mae", resp.MetricName)
	assert.InDelta(t, 0.5, resp.MetricValue, 1e-9)
}

func TestBestRunAPINoCandidates(t *testing.T) {
	w := performRequest(testRouter, "GET", "/v1/training-runs/best?metric=no_such_metric", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
