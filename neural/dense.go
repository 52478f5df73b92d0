package neural

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// 激活函数标签（闭集，配置校验侧保证取值合法）。
const (
	ActivationReLU   = "relu"
	ActivationLinear = "linear"
)

// Dense 全连接层：y = act(x·W + b)。
type Dense struct {
	InFeatures  int
	OutFeatures int
	Activation  string

	w *Param
	b *Param

	// 反向传播缓存
	lastInput *mat.Dense
	lastPre   *mat.Dense // 激活前的 z
}

func NewDense(name string, in, out int, activation string, rng *rand.Rand) *Dense {
	d := &Dense{
		InFeatures:  in,
		OutFeatures: out,
		Activation:  activation,
		w:           newParam(name+".w", in, out),
		b:           newParam(name+".b", 1, out),
	}
	glorotInit(d.w, in, out, rng)
	return d
}

func (d *Dense) Params() []*Param {
	return []*Param{d.w, d.b}
}

func (d *Dense) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows, _ := x.Dims()
	z := mat.NewDense(rows, d.OutFeatures, nil)
	z.Mul(x, d.w.W)
	addRowVecInPlace(z, d.b.W)

	if training {
		d.lastInput = x
		pre := mat.NewDense(rows, d.OutFeatures, nil)
		pre.Copy(z)
		d.lastPre = pre
	}

	switch d.Activation {
	case ActivationReLU:
		applyInPlace(z, func(v float64) float64 {
			if v < 0 {
				return 0
			}
			return v
		})
	case ActivationLinear:
		// 原样输出
	default:
		panic(fmt.Sprintf("neural: unknown activation %q", d.Activation))
	}
	return z
}

func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()

	// dz = grad ∘ act'(z)
	dz := mat.NewDense(rows, d.OutFeatures, nil)
	switch d.Activation {
	case ActivationReLU:
		for i := 0; i < rows; i++ {
			for j := 0; j < d.OutFeatures; j++ {
				if d.lastPre.At(i, j) > 0 {
					dz.Set(i, j, grad.At(i, j))
				}
			}
		}
	case ActivationLinear:
		dz.Copy(grad)
	default:
		panic(fmt.Sprintf("neural: unknown activation %q", d.Activation))
	}

	// dW += xᵀ·dz，db += Σ行 dz
	var dw mat.Dense
	dw.Mul(d.lastInput.T(), dz)
	d.w.Grad.Add(d.w.Grad, &dw)
	colSumInto(d.b.Grad, dz)

	// dx = dz·Wᵀ
	dx := mat.NewDense(rows, d.InFeatures, nil)
	dx.Mul(dz, d.w.W.T())
	return dx
}
