package neural_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/neural"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// linearDataset y = 2*x0 - x1 + 0.5，加一点噪声。
func linearDataset(rows int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(rows, 2, nil)
	y := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		a := rng.Float64()*4 - 2
		b := rng.Float64()*4 - 2
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y.Set(i, 0, 2*a-b+0.5+rng.NormFloat64()*0.01)
	}
	return x, y
}

func denseNet(seed int64) *neural.Network {
	net := neural.NewNetwork(seed)
	rng := net.RNG()
	net.Add(neural.NewDense("dense_0", 2, 16, neural.ActivationReLU, rng))
	net.Add(neural.NewDense("output", 16, 1, neural.ActivationLinear, rng))
	net.Compile(0.01)
	return net
}

func TestFitReducesLoss(t *testing.T) {
	x, y := linearDataset(256, 1)
	net := denseNet(42)

	history, err := net.Fit(x, y, neural.FitOptions{Epochs: 30, BatchSize: 32})
	assert.NoError(t, err, "fit should succeed")
	assert.Equal(t, 30, history.EpochsCompleted)

	first := history.EpochLogs[0]["loss"]
	last := history.EpochLogs[len(history.EpochLogs)-1]["loss"]
	assert.Less(t, last, first/2, "loss should drop markedly on a linear target")
	assert.Less(t, last, 0.1, "network should fit an affine function well")
}

func TestFitRequiresCompile(t *testing.T) {
	net := neural.NewNetwork(1)
	net.Add(neural.NewDense("dense_0", 2, 4, neural.ActivationReLU, net.RNG()))

	x, y := linearDataset(8, 1)
	_, err := net.Fit(x, y, neural.FitOptions{Epochs: 1, BatchSize: 4})
	assert.Error(t, err, "fit before compile should fail")
}

func TestFitValidationMetrics(t *testing.T) {
	x, y := linearDataset(128, 1)
	xv, yv := linearDataset(32, 2)
	net := denseNet(42)

	history, err := net.Fit(x, y, neural.FitOptions{
		Epochs: 3, BatchSize: 32, XVal: xv, YVal: yv,
	})
	assert.NoError(t, err)

	logs := history.EpochLogs[0]
	for _, key := range []string{"loss", "mae", "val_loss", "val_mae"} {
		_, ok := logs[key]
		assert.True(t, ok, "epoch logs should carry %s", key)
	}
}

func TestFitEarlyStopping(t *testing.T) {
	x, y := linearDataset(64, 1)
	xv, yv := linearDataset(16, 2)
	net := denseNet(42)

	history, err := net.Fit(x, y, neural.FitOptions{
		Epochs: 500, BatchSize: 16, XVal: xv, YVal: yv, Patience: 3,
	})
	assert.NoError(t, err)
	assert.True(t, history.StoppedEarly, "a converged fit should stop before 500 epochs")
	assert.Less(t, history.EpochsCompleted, 500)
}

func TestFitCallbackAbort(t *testing.T) {
	x, y := linearDataset(64, 1)
	net := denseNet(42)

	abort := errors.New("stop requested")
	history, err := net.Fit(x, y, neural.FitOptions{
		Epochs: 10, BatchSize: 16,
		Callbacks: []neural.EpochCallback{
			func(epoch int, logs map[string]float64) error {
				if epoch == 2 {
					return abort
				}
				return nil
			},
		},
	})
	assert.ErrorIs(t, err, abort, "callback error should abort the fit")
	assert.Equal(t, 3, history.EpochsCompleted, "three epochs ran before the abort")
}

func TestStateDictRoundTrip(t *testing.T) {
	x, y := linearDataset(64, 1)
	net := denseNet(42)
	_, err := net.Fit(x, y, neural.FitOptions{Epochs: 5, BatchSize: 16})
	assert.NoError(t, err)

	states := net.StateDict()
	assert.NotEmpty(t, states, "trained network exports parameters")

	// 导入另一个同结构网络，预测应逐值一致
	other := denseNet(7)
	assert.NoError(t, other.LoadStateDict(states))

	pred := net.Predict(x)
	otherPred := other.Predict(x)
	assert.Equal(t, pred.RawMatrix().Data, otherPred.RawMatrix().Data, "loaded weights reproduce predictions")
}

func TestLoadStateDictShapeMismatch(t *testing.T) {
	net := denseNet(42)

	wrong := neural.NewNetwork(1)
	rng := wrong.RNG()
	wrong.Add(neural.NewDense("dense_0", 2, 8, neural.ActivationReLU, rng))
	wrong.Add(neural.NewDense("output", 8, 1, neural.ActivationLinear, rng))
	wrong.Compile(0.01)

	err := wrong.LoadStateDict(net.StateDict())
	assert.Error(t, err, "mismatched layer widths should be rejected")
}

func TestPredictIsDeterministic(t *testing.T) {
	// dropout 只在训练时生效，推理前向必须稳定
	net := neural.NewNetwork(42)
	rng := net.RNG()
	net.Add(neural.NewDense("dense_0", 2, 8, neural.ActivationReLU, rng))
	net.Add(neural.NewDropout(0.5, rng))
	net.Add(neural.NewDense("output", 8, 1, neural.ActivationLinear, rng))
	net.Compile(0.01)

	x, _ := linearDataset(16, 1)
	a := net.Predict(x)
	b := net.Predict(x)
	assert.Equal(t, a.RawMatrix().Data, b.RawMatrix().Data, "repeated inference gives identical output")
}

func TestBiLSTMFitReducesLoss(t *testing.T) {
	x, y := linearDataset(128, 1)

	net := neural.NewNetwork(42)
	rng := net.RNG()
	net.Add(neural.NewBiLSTM("bilstm_0", 2, 8, 0, rng))
	net.Add(neural.NewDense("output", 16, 1, neural.ActivationLinear, rng))
	net.Compile(0.01)

	history, err := net.Fit(x, y, neural.FitOptions{Epochs: 40, BatchSize: 32})
	assert.NoError(t, err)

	first := history.EpochLogs[0]["loss"]
	last := history.EpochLogs[len(history.EpochLogs)-1]["loss"]
	assert.Less(t, last, first, "recurrent stack should also learn the linear target")
}
