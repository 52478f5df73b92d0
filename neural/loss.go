package neural

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// 指标名与 Keras 回调里的键保持一致：loss / mae，验证集加 val_ 前缀。
const (
	MetricLoss = "loss"
	MetricMAE  = "mae"
)

// mseLoss 返回均方误差以及对预测值的梯度。
func mseLoss(pred, target *mat.Dense) (float64, *mat.Dense) {
	rows, cols := pred.Dims()
	n := float64(rows * cols)

	grad := mat.NewDense(rows, cols, nil)
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			diff := pred.At(i, j) - target.At(i, j)
			sum += diff * diff
			grad.Set(i, j, 2*diff/n)
		}
	}
	return sum / n, grad
}

// maeMetric 平均绝对误差。
func maeMetric(pred, target *mat.Dense) float64 {
	rows, cols := pred.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum += math.Abs(pred.At(i, j) - target.At(i, j))
		}
	}
	return sum / float64(rows*cols)
}
