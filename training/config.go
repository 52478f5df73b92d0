package training

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// 模型结构标签（闭集）。新增结构：加一个标签、一个变体结构体、
// factory 里加一个分支，其它组件不动。
const (
	ModelTypeDense  = "dense"
	ModelTypeBiLSTM = "bilstm"
)

// 缺省值。model.type 刻意没有缺省：网格搜索搜错网络结构的代价
// 远高于多写一行配置。
const (
	DefaultTargetColumn       = "finish_position"
	DefaultTestFraction       = 0.2
	DefaultValidationFraction = 0.1
	DefaultRandomSeed         = int64(42)
	DefaultBatchSize          = 32
	DefaultMaxEpochs          = 100
	DefaultLearningRate       = 0.001
	DefaultDropoutRate        = 0.2
)

// FieldError 单个字段的校验失败。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 聚合一次 parse 的全部字段错误，而不是只报第一个。
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid experiment config: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// DenseConfig dense 变体的超参数。
type DenseConfig struct {
	HiddenLayers []int   `json:"hidden_layers"`
	DropoutRate  float64 `json:"dropout_rate"`
}

// BiLSTMConfig bilstm 变体的超参数。RecurrentDropout 在长度 1 的
// 序列输入下无作用面，仅校验并记录进快照。
type BiLSTMConfig struct {
	LSTMUnits        []int   `json:"lstm_units"`
	DenseLayers      []int   `json:"dense_layers"`
	DropoutRate      float64 `json:"dropout_rate"`
	RecurrentDropout float64 `json:"recurrent_dropout"`
}

// ModelConfig 带判别标签的变体值：Type 决定哪个变体被填充，
// 变体之间的字段互不可见。
type ModelConfig struct {
	Type   string
	Dense  *DenseConfig
	BiLSTM *BiLSTMConfig
}

// MarshalJSON 序列化成配置源的扁平形状：
// {"type":"dense","hidden_layers":[...],"dropout_rate":0.2}
func (m ModelConfig) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": m.Type}
	switch m.Type {
	case ModelTypeDense:
		if m.Dense != nil {
			out["hidden_layers"] = m.Dense.HiddenLayers
			out["dropout_rate"] = m.Dense.DropoutRate
		}
	case ModelTypeBiLSTM:
		if m.BiLSTM != nil {
			out["lstm_units"] = m.BiLSTM.LSTMUnits
			out["dense_layers"] = m.BiLSTM.DenseLayers
			out["dropout_rate"] = m.BiLSTM.DropoutRate
			out["recurrent_dropout"] = m.BiLSTM.RecurrentDropout
		}
	}
	return json.Marshal(out)
}

func (m *ModelConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	verr := &ValidationError{}
	parsed := parseModel(raw, verr)
	if len(verr.Fields) > 0 {
		return verr
	}
	*m = parsed
	return nil
}

// ExperimentConfig 一次训练运行的声明式描述。
// 值语义：构建之后不再改写，改一个字段就是一个新配置。
type ExperimentConfig struct {
	TargetColumn          string      `json:"target_column"`
	ExcludeColumns        []string    `json:"exclude_columns"`
	TestFraction          float64     `json:"test_fraction"`
	ValidationFraction    float64     `json:"validation_fraction"`
	RandomSeed            int64       `json:"random_seed"`
	Model                 ModelConfig `json:"model"`
	BatchSize             int         `json:"batch_size"`
	MaxEpochs             int         `json:"max_epochs"`
	LearningRate          float64     `json:"learning_rate"`
	EarlyStoppingPatience *int        `json:"early_stopping_patience,omitempty"`
	Description           string      `json:"description,omitempty"`
	Tags                  []string    `json:"tags,omitempty"`

	// 解析数据后回填的特征列顺序，让保存的模型自带输入契约。
	// 通过 WithFeatureColumns 产生新值，不在原地改。
	FeatureColumns []string `json:"feature_columns,omitempty"`
}

// WithFeatureColumns 返回带特征列快照的新配置值。
func (c ExperimentConfig) WithFeatureColumns(cols []string) ExperimentConfig {
	out := c
	out.FeatureColumns = append([]string(nil), cols...)
	return out
}

// JSON 配置快照（落进 run/model 行的那份）。
func (c ExperimentConfig) JSON() ([]byte, error) {
	return json.Marshal(c)
}

var knownTopLevelKeys = map[string]bool{
	"target_column":           true,
	"exclude_columns":         true,
	"test_fraction":           true,
	"validation_fraction":     true,
	"random_seed":             true,
	"model":                   true,
	"batch_size":              true,
	"max_epochs":              true,
	"learning_rate":           true,
	"early_stopping_patience": true,
	"description":             true,
	"tags":                    true,
	"feature_columns":         true,
}

// Parse 把声明式映射（yaml/json 反序列化产物）解析成校验过的
// ExperimentConfig。失败时返回 *ValidationError，带上全部出错字段。
func Parse(raw map[string]interface{}) (ExperimentConfig, error) {
	verr := &ValidationError{}

	cfg := ExperimentConfig{
		TargetColumn:       DefaultTargetColumn,
		TestFraction:       DefaultTestFraction,
		ValidationFraction: DefaultValidationFraction,
		RandomSeed:         DefaultRandomSeed,
		BatchSize:          DefaultBatchSize,
		MaxEpochs:          DefaultMaxEpochs,
		LearningRate:       DefaultLearningRate,
	}

	// 未知键硬拒绝：字段拼错静默生效是网格搜索里最难查的错
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !knownTopLevelKeys[k] {
			verr.add(k, "unknown key")
		}
	}

	if v, ok := raw["target_column"]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			cfg.TargetColumn = s
		} else {
			verr.add("target_column", "must be a non-empty string")
		}
	}

	// yaml 的空键和 json 的 null 都按"未设置"处理
	if v, ok := raw["exclude_columns"]; ok && v != nil {
		cols, err := asStringSlice(v)
		if err != nil {
			verr.add("exclude_columns", "%v", err)
		} else {
			// 显式排除 target 列是 no-op：target 本来就不进特征
			cfg.ExcludeColumns = dedupStrings(cols)
		}
	}

	if v, ok := raw["test_fraction"]; ok {
		if f, err := asFloat(v); err != nil {
			verr.add("test_fraction", "%v", err)
		} else {
			cfg.TestFraction = f
		}
	}
	if v, ok := raw["validation_fraction"]; ok {
		if f, err := asFloat(v); err != nil {
			verr.add("validation_fraction", "%v", err)
		} else {
			cfg.ValidationFraction = f
		}
	}
	if v, ok := raw["random_seed"]; ok {
		if i, err := asInt(v); err != nil {
			verr.add("random_seed", "%v", err)
		} else {
			cfg.RandomSeed = int64(i)
		}
	}
	if v, ok := raw["batch_size"]; ok {
		if i, err := asInt(v); err != nil {
			verr.add("batch_size", "%v", err)
		} else {
			cfg.BatchSize = i
		}
	}
	if v, ok := raw["max_epochs"]; ok {
		if i, err := asInt(v); err != nil {
			verr.add("max_epochs", "%v", err)
		} else {
			cfg.MaxEpochs = i
		}
	}
	if v, ok := raw["learning_rate"]; ok {
		if f, err := asFloat(v); err != nil {
			verr.add("learning_rate", "%v", err)
		} else {
			cfg.LearningRate = f
		}
	}
	if v, ok := raw["early_stopping_patience"]; ok && v != nil {
		if i, err := asInt(v); err != nil {
			verr.add("early_stopping_patience", "%v", err)
		} else {
			cfg.EarlyStoppingPatience = &i
		}
	}
	if v, ok := raw["description"]; ok {
		if s, ok := v.(string); ok {
			cfg.Description = s
		} else {
			verr.add("description", "must be a string")
		}
	}
	if v, ok := raw["tags"]; ok && v != nil {
		tags, err := asStringSlice(v)
		if err != nil {
			verr.add("tags", "%v", err)
		} else {
			cfg.Tags = tags
		}
	}
	if v, ok := raw["feature_columns"]; ok && v != nil {
		cols, err := asStringSlice(v)
		if err != nil {
			verr.add("feature_columns", "%v", err)
		} else {
			cfg.FeatureColumns = cols
		}
	}

	if v, ok := raw["model"]; ok {
		m, ok := v.(map[string]interface{})
		if !ok {
			verr.add("model", "must be a mapping")
		} else {
			cfg.Model = parseModel(m, verr)
		}
	} else {
		verr.add("model", "is required")
	}

	validateRanges(&cfg, verr)

	if len(verr.Fields) > 0 {
		return ExperimentConfig{}, verr
	}
	return cfg, nil
}

func parseModel(m map[string]interface{}, verr *ValidationError) ModelConfig {
	typVal, ok := m["type"]
	if !ok {
		verr.add("model.type", "is required and has no default")
		return ModelConfig{}
	}
	typ, ok := typVal.(string)
	if !ok {
		verr.add("model.type", "must be a string")
		return ModelConfig{}
	}

	switch typ {
	case ModelTypeDense:
		d := &DenseConfig{
			HiddenLayers: []int{64, 32},
			DropoutRate:  DefaultDropoutRate,
		}
		for k, v := range m {
			switch k {
			case "type":
			case "hidden_layers":
				if units, err := asIntSlice(v); err != nil {
					verr.add("model.hidden_layers", "%v", err)
				} else {
					d.HiddenLayers = units
				}
			case "dropout_rate":
				if f, err := asFloat(v); err != nil {
					verr.add("model.dropout_rate", "%v", err)
				} else {
					d.DropoutRate = f
				}
			default:
				verr.add("model."+k, "unknown key for dense model")
			}
		}
		return ModelConfig{Type: ModelTypeDense, Dense: d}

	case ModelTypeBiLSTM:
		b := &BiLSTMConfig{
			LSTMUnits:        []int{64, 32},
			DenseLayers:      []int{32},
			DropoutRate:      DefaultDropoutRate,
			RecurrentDropout: DefaultDropoutRate,
		}
		for k, v := range m {
			switch k {
			case "type":
			case "lstm_units":
				if units, err := asIntSlice(v); err != nil {
					verr.add("model.lstm_units", "%v", err)
				} else {
					b.LSTMUnits = units
				}
			case "dense_layers":
				if units, err := asIntSlice(v); err != nil {
					verr.add("model.dense_layers", "%v", err)
				} else {
					b.DenseLayers = units
				}
			case "dropout_rate":
				if f, err := asFloat(v); err != nil {
					verr.add("model.dropout_rate", "%v", err)
				} else {
					b.DropoutRate = f
				}
			case "recurrent_dropout":
				if f, err := asFloat(v); err != nil {
					verr.add("model.recurrent_dropout", "%v", err)
				} else {
					b.RecurrentDropout = f
				}
			default:
				verr.add("model."+k, "unknown key for bilstm model")
			}
		}
		return ModelConfig{Type: ModelTypeBiLSTM, BiLSTM: b}

	default:
		verr.add("model.type", "unsupported model type %q (want dense|bilstm)", typ)
		return ModelConfig{}
	}
}

func validateRanges(cfg *ExperimentConfig, verr *ValidationError) {
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		verr.add("test_fraction", "must be in (0,1), got %v", cfg.TestFraction)
	}
	if cfg.ValidationFraction <= 0 || cfg.ValidationFraction >= 1 {
		verr.add("validation_fraction", "must be in (0,1), got %v", cfg.ValidationFraction)
	}
	if cfg.TestFraction+cfg.ValidationFraction >= 1 {
		verr.add("test_fraction", "test_fraction + validation_fraction must be < 1, got %v",
			cfg.TestFraction+cfg.ValidationFraction)
	}
	if cfg.BatchSize <= 0 {
		verr.add("batch_size", "must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.MaxEpochs <= 0 {
		verr.add("max_epochs", "must be > 0, got %d", cfg.MaxEpochs)
	}
	if cfg.LearningRate <= 0 || math.IsNaN(cfg.LearningRate) {
		verr.add("learning_rate", "must be > 0, got %v", cfg.LearningRate)
	}
	if cfg.EarlyStoppingPatience != nil && *cfg.EarlyStoppingPatience <= 0 {
		verr.add("early_stopping_patience", "must be > 0 when set, got %d", *cfg.EarlyStoppingPatience)
	}

	switch cfg.Model.Type {
	case ModelTypeDense:
		if cfg.Model.Dense != nil {
			if len(cfg.Model.Dense.HiddenLayers) == 0 {
				verr.add("model.hidden_layers", "must not be empty")
			}
			for i, u := range cfg.Model.Dense.HiddenLayers {
				if u <= 0 {
					verr.add("model.hidden_layers", "entry %d must be > 0, got %d", i, u)
				}
			}
			if r := cfg.Model.Dense.DropoutRate; r < 0 || r >= 1 {
				verr.add("model.dropout_rate", "must be in [0,1), got %v", r)
			}
		}
	case ModelTypeBiLSTM:
		if cfg.Model.BiLSTM != nil {
			if len(cfg.Model.BiLSTM.LSTMUnits) == 0 {
				verr.add("model.lstm_units", "must not be empty")
			}
			for i, u := range cfg.Model.BiLSTM.LSTMUnits {
				if u <= 0 {
					verr.add("model.lstm_units", "entry %d must be > 0, got %d", i, u)
				}
			}
			for i, u := range cfg.Model.BiLSTM.DenseLayers {
				if u <= 0 {
					verr.add("model.dense_layers", "entry %d must be > 0, got %d", i, u)
				}
			}
			if r := cfg.Model.BiLSTM.DropoutRate; r < 0 || r >= 1 {
				verr.add("model.dropout_rate", "must be in [0,1), got %v", r)
			}
			if r := cfg.Model.BiLSTM.RecurrentDropout; r < 0 || r >= 1 {
				verr.add("model.recurrent_dropout", "must be in [0,1), got %v", r)
			}
		}
	}
}

// LoadConfigFile 读取 yaml 配置文件为原始映射，供 Parse / 覆盖层使用。
func LoadConfigFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment config failed: %w", err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal experiment config failed: %w", err)
	}
	return raw, nil
}

// ApplyOverrides 在 base 之上整层覆盖 dotted-path 指到的字段，
// 返回新映射，base 不动。标量整值替换，列表整列替换，不做深合并。
func ApplyOverrides(base map[string]interface{}, overrides map[string]interface{}) map[string]interface{} {
	out := deepCopyMap(base)

	paths := make([]string, 0, len(overrides))
	for p := range overrides {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		setPath(out, strings.Split(path, "."), overrides[path])
	}
	return out
}

func setPath(m map[string]interface{}, parts []string, value interface{}) {
	if len(parts) == 1 {
		m[parts[0]] = value
		return
	}
	child, ok := m[parts[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		m[parts[0]] = child
	}
	setPath(child, parts[1:], value)
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]interface{}:
			out[k] = deepCopyMap(t)
		case []interface{}:
			cp := make([]interface{}, len(t))
			copy(cp, t)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// --- 原始值转换 ---

func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("must be an integer, got %v", t)
		}
		return int(t), nil
	case json.Number:
		i, err := t.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
}

func asStringSlice(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("entry %d must be a string, got %T", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a list of strings, got %T", v)
	}
}

func asIntSlice(v interface{}) ([]int, error) {
	list, ok := v.([]interface{})
	if !ok {
		if ints, ok := v.([]int); ok {
			return append([]int(nil), ints...), nil
		}
		return nil, fmt.Errorf("must be a list of integers, got %T", v)
	}
	out := make([]int, 0, len(list))
	for i, e := range list {
		n, err := asInt(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d %v", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
