package training_test

import (
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/training"

	"github.com/stretchr/testify/assert"
)

func TestExpandSweepGrid(t *testing.T) {
	sweep := training.ExpandSweep(denseRaw(), map[string][]interface{}{
		"learning_rate":      {0.01, 0.001},
		"model.dropout_rate": {0.1, 0.2},
	})

	assert.NotEmpty(t, sweep.ID, "sweep gets an id at expansion time")
	assert.Len(t, sweep.Entries, 4, "full cartesian product")
	assert.Empty(t, sweep.Invalid, "all combinations are valid")

	// 轴按字典序，末位的轴变化最快
	wantLR := []float64{0.01, 0.01, 0.001, 0.001}
	wantDropout := []float64{0.1, 0.2, 0.1, 0.2}
	for i, entry := range sweep.Entries {
		assert.Equal(t, i, entry.Index, "entries keep expansion order")
		assert.InDelta(t, wantLR[i], entry.Config.LearningRate, 1e-9)
		assert.InDelta(t, wantDropout[i], entry.Config.Model.Dense.DropoutRate, 1e-9)
	}
}

func TestExpandSweepSkipsInvalidCombinations(t *testing.T) {
	sweep := training.ExpandSweep(denseRaw(), map[string][]interface{}{
		"learning_rate": {0.01, -1.0, 0.001},
	})

	assert.Len(t, sweep.Entries, 2, "valid combinations survive")
	assert.Len(t, sweep.Invalid, 1, "bad combination is reported, not fatal")
	assert.Equal(t, 1, sweep.Invalid[0].Index, "invalid entry keeps its grid index")
	assert.Error(t, sweep.Invalid[0].Err, "invalid entry carries the validation error")
}

func TestExpandSweepNoAxes(t *testing.T) {
	sweep := training.ExpandSweep(denseRaw(), nil)

	assert.Len(t, sweep.Entries, 1, "no axes means a single run")
	assert.Empty(t, sweep.Entries[0].Overrides)
}

func TestExpandSweepDoesNotMutateBase(t *testing.T) {
	base := denseRaw()
	training.ExpandSweep(base, map[string][]interface{}{
		"model.dropout_rate": {0.9},
	})

	cfg, err := training.Parse(base)
	assert.NoError(t, err)
	assert.InDelta(t, 0.3, cfg.Model.Dense.DropoutRate, 1e-9, "base map should be untouched")
}
