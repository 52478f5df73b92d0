package training

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SweepEntry 网格里一个合法的组合。
type SweepEntry struct {
	Index     int
	Overrides map[string]interface{} // dotted-path -> 值
	Config    ExperimentConfig
}

// SweepInvalid 网格里一个没通过校验的组合。坏组合不应拖垮整个
// 网格，这里带上序号和字段错误原样上抛给调用方记日志。
type SweepInvalid struct {
	Index     int
	Overrides map[string]interface{}
	Err       error
}

// Sweep 一次网格搜索展开的结果。ID 由展开时生成，落到每条
// TrainingRun 的 sweep_id 上，用于把一批运行圈在一起。
type Sweep struct {
	ID      string
	Entries []SweepEntry
	Invalid []SweepInvalid
}

// ExpandSweep 纯函数：基础配置映射 + 各轴候选值 -> 有序的具体配置列表。
// 轴按 dotted-path 字典序排列，末位的轴变化最快，保证展开顺序稳定。
// 每个组合独立走一遍 Parse，坏组合进 Invalid，好组合继续。
func ExpandSweep(base map[string]interface{}, axes map[string][]interface{}) *Sweep {
	sweep := &Sweep{ID: uuid.NewString()}

	paths := make([]string, 0, len(axes))
	for p := range axes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		// 没有轴就是单次运行
		cfg, err := Parse(base)
		if err != nil {
			sweep.Invalid = append(sweep.Invalid, SweepInvalid{Index: 0, Overrides: map[string]interface{}{}, Err: err})
		} else {
			sweep.Entries = append(sweep.Entries, SweepEntry{Index: 0, Overrides: map[string]interface{}{}, Config: cfg})
		}
		return sweep
	}

	total := 1
	for _, p := range paths {
		total *= len(axes[p])
	}

	for idx := 0; idx < total; idx++ {
		overrides := make(map[string]interface{}, len(paths))
		rem := idx
		for i := len(paths) - 1; i >= 0; i-- {
			values := axes[paths[i]]
			overrides[paths[i]] = values[rem%len(values)]
			rem /= len(values)
		}

		combined := ApplyOverrides(base, overrides)
		cfg, err := Parse(combined)
		if err != nil {
			sweep.Invalid = append(sweep.Invalid, SweepInvalid{Index: idx, Overrides: overrides, Err: err})
			continue
		}
		sweep.Entries = append(sweep.Entries, SweepEntry{Index: idx, Overrides: overrides, Config: cfg})
	}
	return sweep
}

// SweepFile 网格搜索配置文件：base 是完整的实验配置，axes 是
// dotted-path 到候选值列表的映射。
type SweepFile struct {
	Base map[string]interface{}   `yaml:"base"`
	Axes map[string][]interface{} `yaml:"axes"`
}

func LoadSweepFile(path string) (*SweepFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep file %s: %w", path, err)
	}
	var sf SweepFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse sweep file %s: %w", path, err)
	}
	if len(sf.Base) == 0 {
		return nil, fmt.Errorf("sweep file %s: base is empty", path)
	}
	return &sf, nil
}
