package training

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/modestprophet/gonzo-pit-strategy/entity"

	"gonum.org/v1/gonum/mat"
)

// DataError 数据解析阶段的失败。发生在任何 run/model 行落库之前，
// 廉价失败不进运行历史。
type DataError struct {
	Message string
}

func (e *DataError) Error() string {
	return "data error: " + e.Message
}

func dataErrorf(format string, args ...interface{}) *DataError {
	return &DataError{Message: fmt.Sprintf(format, args...)}
}

// Dataset 一个切分：特征矩阵 + 目标向量（rows×1）。
type Dataset struct {
	X *mat.Dense
	Y *mat.Dense
}

func (d Dataset) Rows() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// ResolvedData 解析结果。三个切分的特征列顺序完全一致，
// FeatureColumns 就是这份顺序，会回填进配置快照。
type ResolvedData struct {
	Train      Dataset
	Validation Dataset
	Test       Dataset

	FeatureColumns []string
}

// Resolve 把配置的数据选择规则应用到源表上：
// 特征列 = 全部列 − target − exclude，缺失值补零，按种子三路切分。
func Resolve(table *entity.SourceTable, cfg ExperimentConfig) (*ResolvedData, error) {
	logger := trainingLogger().With("func", "Resolve")

	if table == nil || len(table.Columns) == 0 {
		return nil, dataErrorf("source table is empty")
	}

	colIdx := table.ColumnIndex()
	targetIdx, ok := colIdx[cfg.TargetColumn]
	if !ok {
		return nil, dataErrorf("target column %q not found in source table %q", cfg.TargetColumn, table.Name)
	}

	excluded := make(map[string]bool, len(cfg.ExcludeColumns))
	for _, c := range cfg.ExcludeColumns {
		if _, exists := colIdx[c]; !exists && c != cfg.TargetColumn {
			// sweep 配置可能为前向兼容多写列名，软告警即可
			logger.Warn("exclude column not present in source table", "column", c, "table", table.Name)
		}
		excluded[c] = true
	}

	// 特征列保持源表列序，三个切分共享同一份顺序
	var featureCols []string
	var featureIdx []int
	for i, c := range table.Columns {
		if i == targetIdx || excluded[c] {
			continue
		}
		featureCols = append(featureCols, c)
		featureIdx = append(featureIdx, i)
	}
	if len(featureCols) == 0 {
		return nil, dataErrorf("no feature columns left after excluding %d columns", len(cfg.ExcludeColumns))
	}

	n := len(table.Rows)
	if n == 0 {
		return nil, dataErrorf("source table %q has no rows", table.Name)
	}

	x := mat.NewDense(n, len(featureIdx), nil)
	y := mat.NewDense(n, 1, nil)
	coerced := 0
	for r, row := range table.Rows {
		for j, ci := range featureIdx {
			v, clean := coerceNumeric(row[ci])
			if !clean {
				coerced++
			}
			x.Set(r, j, v)
		}
		tv, clean := coerceNumeric(row[targetIdx])
		if !clean {
			coerced++
		}
		y.Set(r, 0, tv)
	}
	if coerced > 0 {
		logger.Info("coerced non-numeric cells to float64 (missing filled with 0)", "cells", coerced)
	}

	// 先按种子切掉测试集，再在剩余部分上按调整比例切验证集；
	// 两次都从同一个种子起，整个三路切分逐比特可复现。
	testCount := int(math.Ceil(float64(n) * cfg.TestFraction))
	perm := rand.New(rand.NewSource(cfg.RandomSeed)).Perm(n)
	testRows := perm[:testCount]
	restRows := perm[testCount:]

	valAdjusted := cfg.ValidationFraction / (1 - cfg.TestFraction)
	valCount := int(math.Ceil(float64(len(restRows)) * valAdjusted))
	perm2 := rand.New(rand.NewSource(cfg.RandomSeed)).Perm(len(restRows))
	valRows := make([]int, 0, valCount)
	trainRows := make([]int, 0, len(restRows)-valCount)
	for i, p := range perm2 {
		if i < valCount {
			valRows = append(valRows, restRows[p])
		} else {
			trainRows = append(trainRows, restRows[p])
		}
	}

	if len(trainRows) == 0 {
		return nil, dataErrorf("training split is empty (%d rows, test_fraction=%v, validation_fraction=%v)",
			n, cfg.TestFraction, cfg.ValidationFraction)
	}

	resolved := &ResolvedData{
		Train:          sliceDataset(x, y, trainRows),
		Validation:     sliceDataset(x, y, valRows),
		Test:           sliceDataset(x, y, testRows),
		FeatureColumns: featureCols,
	}

	logger.Info("resolved training data",
		"features", len(featureCols),
		"train_rows", len(trainRows),
		"validation_rows", len(valRows),
		"test_rows", len(testRows),
	)
	return resolved, nil
}

func sliceDataset(x, y *mat.Dense, rows []int) Dataset {
	if len(rows) == 0 {
		return Dataset{}
	}
	_, cols := x.Dims()
	xs := mat.NewDense(len(rows), cols, nil)
	ys := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		for j := 0; j < cols; j++ {
			xs.Set(i, j, x.At(r, j))
		}
		ys.Set(i, 0, y.At(r, 0))
	}
	return Dataset{X: xs, Y: ys}
}

// coerceNumeric 把上游交回来的混合类型单元格规整成 float64。
// 第二个返回值为 false 表示这个值经过了补救（缺失补零或字符串转换）。
func coerceNumeric(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, false
		}
		return 0, false
	case []byte:
		return parseNumericString(string(t))
	case string:
		return parseNumericString(t)
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	switch strings.ToLower(s) {
	case "true", "t":
		return 1, false
	case "false", "f":
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, false
}
