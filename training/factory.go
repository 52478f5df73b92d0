package training

import (
	"fmt"

	"github.com/modestprophet/gonzo-pit-strategy/neural"
)

// BuildNetwork 把校验过的结构变体映射成编译好的网络。
// 对判别标签做闭合分发；新增结构只需要加一个分支。
// 标签不合法在这里是编程错误（Parse 已经保证闭集），直接 panic。
func BuildNetwork(cfg ExperimentConfig, inputWidth, outputWidth int) *neural.Network {
	net := neural.NewNetwork(cfg.RandomSeed)
	rng := net.RNG()

	switch cfg.Model.Type {
	case ModelTypeDense:
		mc := cfg.Model.Dense
		in := inputWidth
		for i, units := range mc.HiddenLayers {
			net.Add(neural.NewDense(fmt.Sprintf("dense_%d", i), in, units, neural.ActivationReLU, rng))
			if mc.DropoutRate > 0 {
				net.Add(neural.NewDropout(mc.DropoutRate, rng))
			}
			in = units
		}
		net.Add(neural.NewDense("output", in, outputWidth, neural.ActivationLinear, rng))

	case ModelTypeBiLSTM:
		mc := cfg.Model.BiLSTM
		in := inputWidth
		for i, units := range mc.LSTMUnits {
			net.Add(neural.NewBiLSTM(fmt.Sprintf("bilstm_%d", i), in, units, mc.DropoutRate, rng))
			in = 2 * units // 双向拼接
		}
		for i, units := range mc.DenseLayers {
			net.Add(neural.NewDense(fmt.Sprintf("dense_%d", i), in, units, neural.ActivationReLU, rng))
			if mc.DropoutRate > 0 {
				net.Add(neural.NewDropout(mc.DropoutRate, rng))
			}
			in = units
		}
		net.Add(neural.NewDense("output", in, outputWidth, neural.ActivationLinear, rng))

	default:
		panic(fmt.Sprintf("training: unsupported model type %q", cfg.Model.Type))
	}

	net.Compile(cfg.LearningRate)
	return net
}
