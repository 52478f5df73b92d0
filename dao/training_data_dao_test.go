package dao_test

import (
	"context"
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/dao"

	"github.com/stretchr/testify/assert"
)

func TestTrainingDataDAOLoadTable(t *testing.T) {
	dataDAO := dao.NewTrainingDataDAO()

	assert.NoError(t, dataDAO.DB.Exec(`CREATE TABLE IF NOT EXISTS prep_training_dataset_test (
		grid_position REAL,
		avg_lap_time REAL,
		finish_position REAL
	)`).Error)
	assert.NoError(t, dataDAO.DB.Exec(
		`INSERT INTO prep_training_dataset_test VALUES (1.0, 92.3, 2.0), (5.0, 94.1, 7.0)`,
	).Error)
	t.Cleanup(func() {
		_ = dataDAO.DB.Exec(`DROP TABLE prep_training_dataset_test`).Error
	})

	table, err := dataDAO.LoadTable(context.Background(), "prep_training_dataset_test")
	assert.NoError(t, err, "load table should succeed")
	assert.Equal(t, []string{"grid_position", "avg_lap_time", "finish_position"}, table.Columns, "columns follow table order")
	assert.Len(t, table.Rows, 2, "both rows should be loaded")
	assert.Len(t, table.Rows[0], 3, "each row has one value per column")
}

func TestTrainingDataDAOLoadTableRejectsBadName(t *testing.T) {
	dataDAO := dao.NewTrainingDataDAO()

	_, err := dataDAO.LoadTable(context.Background(), "prep; DROP TABLE gonzo_models")
	assert.Error(t, err, "non-identifier table names should be rejected")
}
