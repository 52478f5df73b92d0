package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Layer 前向/反向传播的最小接口。Backward 返回对输入的梯度，
// 并把参数梯度累加到各自的 Param.Grad 上。
type Layer interface {
	Forward(x *mat.Dense, training bool) *mat.Dense
	Backward(grad *mat.Dense) *mat.Dense
	Params() []*Param
}

// EpochCallback 训练循环在每个 epoch 结束后依次调用。
// logs 的键：loss / mae，有验证集时附带 val_loss / val_mae。
// 返回非 nil 错误会中止训练。
type EpochCallback func(epoch int, logs map[string]float64) error

// FitOptions 一次 fit 调用的训练循环参数。
type FitOptions struct {
	Epochs    int
	BatchSize int

	// 可选验证集
	XVal *mat.Dense
	YVal *mat.Dense

	// >0 时启用早停：监控 val_loss（无验证集时退化为 loss），
	// 连续 Patience 个 epoch 无改善即停，并恢复最优权重。
	Patience int

	Callbacks []EpochCallback
}

// History fit 的逐 epoch 记录。
type History struct {
	EpochLogs       []map[string]float64
	EpochsCompleted int
	StoppedEarly    bool
}

// Network 按层堆叠的回归网络。黑盒契约：按层描述构建、fit、
// evaluate、predict，权重可导出导入。
type Network struct {
	layers []Layer
	rng    *rand.Rand
	opt    *Adam
	lr     float64
}

func NewNetwork(seed int64) *Network {
	return &Network{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// RNG 返回网络的随机源，层初始化与 dropout 掩码共用同一个源，
// 同一个种子给出可复现的一次训练。
func (n *Network) RNG() *rand.Rand {
	return n.rng
}

func (n *Network) Add(layer Layer) {
	n.layers = append(n.layers, layer)
}

// Compile 绑定优化器。必须在 Fit 之前调用。
func (n *Network) Compile(learningRate float64) {
	n.lr = learningRate
	n.opt = NewAdam(n.params(), learningRate)
}

func (n *Network) params() []*Param {
	var all []*Param
	for _, l := range n.layers {
		all = append(all, l.Params()...)
	}
	return all
}

func (n *Network) forward(x *mat.Dense, training bool) *mat.Dense {
	out := x
	for _, l := range n.layers {
		out = l.Forward(out, training)
	}
	return out
}

func (n *Network) backward(grad *mat.Dense) {
	for i := len(n.layers) - 1; i >= 0; i-- {
		grad = n.layers[i].Backward(grad)
	}
}

// Fit 小批量训练循环。训练集指标按批次样本数加权平均，
// 验证集指标在 epoch 末整体评估。
func (n *Network) Fit(x, y *mat.Dense, opts FitOptions) (*History, error) {
	if n.opt == nil {
		return nil, errors.New("network is not compiled")
	}
	rows, _ := x.Dims()
	yRows, _ := y.Dims()
	if rows == 0 {
		return nil, errors.New("training set is empty")
	}
	if rows != yRows {
		return nil, fmt.Errorf("feature rows (%d) and target rows (%d) differ", rows, yRows)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > rows {
		batchSize = rows
	}

	hasVal := opts.XVal != nil && opts.YVal != nil
	monitor := MetricLoss
	if hasVal {
		monitor = "val_" + MetricLoss
	}

	history := &History{}
	bestMonitor := math.Inf(1)
	sinceBest := 0
	var bestWeights []ParamState

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		perm := n.rng.Perm(rows)

		lossSum := 0.0
		maeSum := 0.0
		for start := 0; start < rows; start += batchSize {
			end := start + batchSize
			if end > rows {
				end = rows
			}
			idx := perm[start:end]
			xb := takeRows(x, idx)
			yb := takeRows(y, idx)

			pred := n.forward(xb, true)
			loss, grad := mseLoss(pred, yb)
			n.backward(grad)
			n.opt.Step()

			weight := float64(len(idx))
			lossSum += loss * weight
			maeSum += maeMetric(pred, yb) * weight
		}

		logs := map[string]float64{
			MetricLoss: lossSum / float64(rows),
			MetricMAE:  maeSum / float64(rows),
		}
		if hasVal {
			valLogs := n.Evaluate(opts.XVal, opts.YVal)
			for name, v := range valLogs {
				logs["val_"+name] = v
			}
		}

		history.EpochLogs = append(history.EpochLogs, logs)
		history.EpochsCompleted = epoch + 1

		for _, cb := range opts.Callbacks {
			if err := cb(epoch, logs); err != nil {
				return history, err
			}
		}

		if opts.Patience > 0 {
			if logs[monitor] < bestMonitor {
				bestMonitor = logs[monitor]
				sinceBest = 0
				bestWeights = n.StateDict()
			} else {
				sinceBest++
				if sinceBest >= opts.Patience {
					history.StoppedEarly = true
					break
				}
			}
		}
	}

	// 早停启用时恢复监控指标最优的一组权重
	if opts.Patience > 0 && bestWeights != nil {
		if err := n.LoadStateDict(bestWeights); err != nil {
			return history, fmt.Errorf("restore best weights failed: %w", err)
		}
	}

	return history, nil
}

// Evaluate 整体前向一遍，返回 loss 与各评估指标。
func (n *Network) Evaluate(x, y *mat.Dense) map[string]float64 {
	pred := n.forward(x, false)
	loss, _ := mseLoss(pred, y)
	return map[string]float64{
		MetricLoss: loss,
		MetricMAE:  maeMetric(pred, y),
	}
}

// Predict 推理前向。
func (n *Network) Predict(x *mat.Dense) *mat.Dense {
	return n.forward(x, false)
}

func takeRows(m *mat.Dense, idx []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	for i, r := range idx {
		for j := 0; j < cols; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}
