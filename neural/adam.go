package neural

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam 优化器。
//
//	m_t = beta1*m + (1-beta1)*grad
//	v_t = beta2*v + (1-beta2)*grad²
//	w  -= lr * m̂ / (sqrt(v̂) + eps)
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int

	params []*Param
	m      []*mat.Dense
	v      []*mat.Dense
}

func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		params: params,
	}
	for _, p := range params {
		r, c := p.W.Dims()
		a.m = append(a.m, mat.NewDense(r, c, nil))
		a.v = append(a.v, mat.NewDense(r, c, nil))
	}
	return a
}

// Step 按当前梯度更新一次参数并清空梯度。
func (a *Adam) Step() {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i, p := range a.params {
		w := p.W.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		m := a.m[i].RawMatrix().Data
		v := a.v[i].RawMatrix().Data

		for j := range w {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			w[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
		p.zeroGrad()
	}
}
