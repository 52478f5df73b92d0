package dao_test

import (
	"context"
	"testing"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/entity"

	"github.com/stretchr/testify/assert"
)

func epochMetrics(runID uint, epoch int) []entity.TrainingMetric {
	now := time.Now()
	return []entity.TrainingMetric{
		{RunID: runID, Epoch: epoch, MetricName: "loss", MetricValue: 2.0, SplitType: entity.SplitTrain, Timestamp: now},
		{RunID: runID, Epoch: epoch, MetricName: "mae", MetricValue: 1.2, SplitType: entity.SplitTrain, Timestamp: now},
		{RunID: runID, Epoch: epoch, MetricName: "loss", MetricValue: 2.4, SplitType: entity.SplitValidation, Timestamp: now},
		{RunID: runID, Epoch: epoch, MetricName: "mae", MetricValue: 1.4, SplitType: entity.SplitValidation, Timestamp: now},
	}
}

func TestTrainingMetricDAOSaveBatch(t *testing.T) {
	runDAO := dao.NewTrainingRunDAO()
	metricDAO := dao.NewTrainingMetricDAO()

	run := newTestRun(1)
	mustSaveRun(t, runDAO, run)

	assert.NoError(t, metricDAO.SaveBatch(context.Background(), epochMetrics(run.ID, 0)))
	assert.NoError(t, metricDAO.SaveBatch(context.Background(), epochMetrics(run.ID, 1)))
	t.Cleanup(func() {
		_ = metricDAO.DB.Where("run_id = ?", run.ID).Delete(&entity.TrainingMetric{}).Error
	})

	total, err := metricDAO.CountByRun(context.Background(), run.ID)
	assert.NoError(t, err, "count should succeed")
	assert.Equal(t, int64(8), total, "two epochs of four metrics each")
}

func TestTrainingMetricDAOSaveBatchEmpty(t *testing.T) {
	metricDAO := dao.NewTrainingMetricDAO()

	assert.NoError(t, metricDAO.SaveBatch(context.Background(), nil), "empty batch is a no-op")
}

func TestTrainingMetricDAOFindByRunFilters(t *testing.T) {
	runDAO := dao.NewTrainingRunDAO()
	metricDAO := dao.NewTrainingMetricDAO()

	run := newTestRun(1)
	mustSaveRun(t, runDAO, run)

	batch := epochMetrics(run.ID, 0)
	batch = append(batch, entity.TrainingMetric{
		RunID: run.ID, Epoch: entity.FinalEpoch,
		MetricName: "mae", MetricValue: 1.0,
		SplitType: entity.SplitTest, Timestamp: time.Now(),
	})
	assert.NoError(t, metricDAO.SaveBatch(context.Background(), batch))
	t.Cleanup(func() {
		_ = metricDAO.DB.Where("run_id = ?", run.ID).Delete(&entity.TrainingMetric{}).Error
	})

	valOnly, err := metricDAO.FindByRun(context.Background(), run.ID, entity.QueryParams{SplitType: entity.SplitValidation})
	assert.NoError(t, err, "split filter should succeed")
	assert.Len(t, valOnly, 2, "two validation metrics in epoch 0")

	maeOnly, err := metricDAO.FindByRun(context.Background(), run.ID, entity.QueryParams{MetricName: "mae"})
	assert.NoError(t, err, "name filter should succeed")
	assert.Len(t, maeOnly, 3, "train, validation and final mae")

	finalOnly, err := metricDAO.FindByRun(context.Background(), run.ID, entity.QueryParams{FinalOnly: true})
	assert.NoError(t, err, "final filter should succeed")
	assert.Len(t, finalOnly, 1, "only the test-split final metric")
	assert.Equal(t, entity.FinalEpoch, finalOnly[0].Epoch, "final metric uses the sentinel epoch")
}

func TestTrainingMetricDAOFindByRunInvalidID(t *testing.T) {
	metricDAO := dao.NewTrainingMetricDAO()

	_, err := metricDAO.FindByRun(context.Background(), 0, entity.QueryParams{})
	assert.ErrorIs(t, err, dao.ErrInvalidID, "zero run id should be rejected")
}
