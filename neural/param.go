package neural

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Param 一个可训练参数矩阵及其梯度。
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name: name,
		W:    mat.NewDense(rows, cols, nil),
		Grad: mat.NewDense(rows, cols, nil),
	}
}

func (p *Param) zeroGrad() {
	data := p.Grad.RawMatrix().Data
	for i := range data {
		data[i] = 0
	}
}

// ParamState 单个参数的扁平快照，用于产出物保存与加载。
type ParamState struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// StateDict 导出全部参数，顺序与网络层顺序一致。
func (n *Network) StateDict() []ParamState {
	var states []ParamState
	for _, p := range n.params() {
		r, c := p.W.Dims()
		data := make([]float64, r*c)
		copy(data, p.W.RawMatrix().Data)
		states = append(states, ParamState{Name: p.Name, Rows: r, Cols: c, Data: data})
	}
	return states
}

// LoadStateDict 按顺序回填参数。形状不匹配说明配置与产出物不一致，直接报错。
func (n *Network) LoadStateDict(states []ParamState) error {
	params := n.params()
	if len(states) != len(params) {
		return fmt.Errorf("state dict has %d params, network has %d", len(states), len(params))
	}
	for i, p := range params {
		s := states[i]
		r, c := p.W.Dims()
		if s.Rows != r || s.Cols != c {
			return fmt.Errorf("param %s: state shape %dx%d, network shape %dx%d", p.Name, s.Rows, s.Cols, r, c)
		}
		copy(p.W.RawMatrix().Data, s.Data)
	}
	return nil
}
