package training

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modestprophet/gonzo-pit-strategy/neural"
)

// ConsoleEpochCallback 每个 epoch 末往控制台打一份训练/验证指标。
// 观测旁路，不算契约面；输出带 epoch 序号和全部指标键值。
func ConsoleEpochCallback() neural.EpochCallback {
	return func(epoch int, logs map[string]float64) error {
		header := fmt.Sprintf("Epoch %d", epoch+1)
		fmt.Printf("\n%s\n%s\n", header, strings.Repeat("-", len(header)))

		train := make([]string, 0, len(logs))
		val := make([]string, 0, len(logs))
		for name := range logs {
			if strings.HasPrefix(name, valMetricPrefix) {
				val = append(val, name)
			} else {
				train = append(train, name)
			}
		}
		sort.Strings(train)
		sort.Strings(val)

		if len(train) > 0 {
			fmt.Println("Training:")
			for _, name := range train {
				fmt.Printf("  %s: %.4f\n", name, logs[name])
			}
		}
		if len(val) > 0 {
			fmt.Println("Validation:")
			for _, name := range val {
				fmt.Printf("  %s: %.4f\n", strings.TrimPrefix(name, valMetricPrefix), logs[name])
			}
		}
		fmt.Println()
		return nil
	}
}
