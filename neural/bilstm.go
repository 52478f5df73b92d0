package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// BiLSTM 双向 LSTM 层。训练表是每行一个 (车手, 分站) 的扁平样本，
// 所以每个样本按长度为 1 的序列处理（与上游 Reshape((1, features)) 等价）。
// 初始状态为零时循环权重不参与单步前向，但仍作为参数保留，
// 保证结构与权重快照和标准 LSTM 一致。recurrent_dropout 在长度 1
// 的序列上没有作用面，仅在配置里校验与记录。
type BiLSTM struct {
	InFeatures int
	Units      int
	// 输入侧 dropout（对应 Keras LSTM 的 dropout 参数）
	Dropout float64

	fwd lstmDirection
	bwd lstmDirection
}

// lstmDirection 单方向单步 LSTM 的参数与反向缓存。
// 门顺序与 Keras 一致：[i | f | g | o]，各占 Units 列。
type lstmDirection struct {
	wx *Param // in × 4U
	uh *Param // U × 4U，零初始状态下单步不产生梯度
	b  *Param // 1 × 4U

	rng *rand.Rand

	// 缓存
	input *mat.Dense // dropout 后的输入
	mask  *mat.Dense
	i     *mat.Dense
	g     *mat.Dense
	o     *mat.Dense
	c     *mat.Dense
}

func NewBiLSTM(name string, in, units int, dropout float64, rng *rand.Rand) *BiLSTM {
	l := &BiLSTM{
		InFeatures: in,
		Units:      units,
		Dropout:    dropout,
	}
	l.fwd = newLSTMDirection(name+".fwd", in, units, rng)
	l.bwd = newLSTMDirection(name+".bwd", in, units, rng)
	return l
}

func newLSTMDirection(name string, in, units int, rng *rand.Rand) lstmDirection {
	d := lstmDirection{
		wx:  newParam(name+".wx", in, 4*units),
		uh:  newParam(name+".uh", units, 4*units),
		b:   newParam(name+".b", 1, 4*units),
		rng: rng,
	}
	glorotInit(d.wx, in, 4*units, rng)
	glorotInit(d.uh, units, 4*units, rng)
	return d
}

func (l *BiLSTM) Params() []*Param {
	return []*Param{l.fwd.wx, l.fwd.uh, l.fwd.b, l.bwd.wx, l.bwd.uh, l.bwd.b}
}

func (l *BiLSTM) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows, _ := x.Dims()
	hf := l.fwd.step(x, l.Dropout, l.Units, training)
	hb := l.bwd.step(x, l.Dropout, l.Units, training)

	// 输出为 [h_fwd | h_bwd]
	out := mat.NewDense(rows, 2*l.Units, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < l.Units; j++ {
			out.Set(i, j, hf.At(i, j))
			out.Set(i, l.Units+j, hb.At(i, j))
		}
	}
	return out
}

func (l *BiLSTM) Backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()

	dhf := mat.NewDense(rows, l.Units, nil)
	dhb := mat.NewDense(rows, l.Units, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < l.Units; j++ {
			dhf.Set(i, j, grad.At(i, j))
			dhb.Set(i, j, grad.At(i, l.Units+j))
		}
	}

	dxf := l.fwd.stepBackward(dhf, l.Units, l.InFeatures)
	dxb := l.bwd.stepBackward(dhb, l.Units, l.InFeatures)

	dx := mat.NewDense(rows, l.InFeatures, nil)
	dx.Add(dxf, dxb)
	return dx
}

// step 单步前向：z = x·Wx + b，c = i∘g，h = o∘tanh(c)。
func (d *lstmDirection) step(x *mat.Dense, dropout float64, units int, training bool) *mat.Dense {
	rows, cols := x.Dims()

	// 输入侧 dropout，每个方向独立掩码
	in := x
	d.mask = nil
	if training && dropout > 0 {
		keep := 1.0 - dropout
		scale := 1.0 / keep
		d.mask = mat.NewDense(rows, cols, nil)
		masked := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if d.rng.Float64() < keep {
					d.mask.Set(i, j, scale)
					masked.Set(i, j, x.At(i, j)*scale)
				}
			}
		}
		in = masked
	}

	z := mat.NewDense(rows, 4*units, nil)
	z.Mul(in, d.wx.W)
	addRowVecInPlace(z, d.b.W)

	iGate := mat.NewDense(rows, units, nil)
	gGate := mat.NewDense(rows, units, nil)
	oGate := mat.NewDense(rows, units, nil)
	c := mat.NewDense(rows, units, nil)
	h := mat.NewDense(rows, units, nil)
	for r := 0; r < rows; r++ {
		for u := 0; u < units; u++ {
			iv := sigmoid(z.At(r, u))
			gv := math.Tanh(z.At(r, 2*units+u))
			ov := sigmoid(z.At(r, 3*units+u))
			cv := iv * gv
			iGate.Set(r, u, iv)
			gGate.Set(r, u, gv)
			oGate.Set(r, u, ov)
			c.Set(r, u, cv)
			h.Set(r, u, ov*math.Tanh(cv))
		}
	}

	if training {
		d.input = in
		d.i, d.g, d.o, d.c = iGate, gGate, oGate, c
	}
	return h
}

func (d *lstmDirection) stepBackward(dh *mat.Dense, units, inFeatures int) *mat.Dense {
	rows, _ := dh.Dims()

	// 遗忘门在 c_prev = 0 时梯度恒为零，dz 的 f 段保持 0
	dz := mat.NewDense(rows, 4*units, nil)
	for r := 0; r < rows; r++ {
		for u := 0; u < units; u++ {
			iv := d.i.At(r, u)
			gv := d.g.At(r, u)
			ov := d.o.At(r, u)
			tc := math.Tanh(d.c.At(r, u))

			dhv := dh.At(r, u)
			dov := dhv * tc
			dcv := dhv * ov * (1 - tc*tc)
			div := dcv * gv
			dgv := dcv * iv

			dz.Set(r, u, div*iv*(1-iv))
			dz.Set(r, 2*units+u, dgv*(1-gv*gv))
			dz.Set(r, 3*units+u, dov*ov*(1-ov))
		}
	}

	var dwx mat.Dense
	dwx.Mul(d.input.T(), dz)
	d.wx.Grad.Add(d.wx.Grad, &dwx)
	colSumInto(d.b.Grad, dz)

	dx := mat.NewDense(rows, inFeatures, nil)
	dx.Mul(dz, d.wx.W.T())
	if d.mask != nil {
		hadamardInto(dx, dx, d.mask)
	}
	return dx
}
