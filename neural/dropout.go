package neural

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout 反向缩放 dropout：训练时以 1/(1-rate) 放大保留元素，
// 推理时原样直通。
type Dropout struct {
	Rate float64

	rng  *rand.Rand
	mask *mat.Dense
}

func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

func (d *Dropout) Params() []*Param {
	return nil
}

func (d *Dropout) Forward(x *mat.Dense, training bool) *mat.Dense {
	if !training || d.Rate <= 0 {
		d.mask = nil
		return x
	}

	rows, cols := x.Dims()
	keep := 1.0 - d.Rate
	scale := 1.0 / keep

	d.mask = mat.NewDense(rows, cols, nil)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if d.rng.Float64() < keep {
				d.mask.Set(i, j, scale)
				out.Set(i, j, x.At(i, j)*scale)
			}
		}
	}
	return out
}

func (d *Dropout) Backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return grad
	}
	rows, cols := grad.Dims()
	dx := mat.NewDense(rows, cols, nil)
	hadamardInto(dx, grad, d.mask)
	return dx
}
