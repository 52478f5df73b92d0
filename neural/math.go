package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// applyInPlace 对矩阵逐元素应用 f。
func applyInPlace(m *mat.Dense, f func(float64) float64) {
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			row[j] = f(v)
		}
	}
}

// hadamardInto dst = a ∘ b，dst 可与 a 或 b 相同，形状须一致。
func hadamardInto(dst, a, b *mat.Dense) {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(i, j, a.At(i, j)*b.At(i, j))
		}
	}
}

// addRowVecInPlace 把 1×c 的行向量加到 m 的每一行上。
func addRowVecInPlace(m *mat.Dense, row *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+row.At(0, j))
		}
	}
}

// colSumInto 按列求和写进 1×c 的 dst（梯度对偏置的归约）。
func colSumInto(dst *mat.Dense, m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		dst.Set(0, j, dst.At(0, j)+sum)
	}
}

// glorotInit Glorot/Xavier 均匀初始化，和 Keras Dense/LSTM 的默认一致。
func glorotInit(p *Param, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := p.W.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
}
