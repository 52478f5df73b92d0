package entity

// SourceTable 上游特征管道产出的扁平训练表的一次全量读取。
// 列的类型不受本系统控制，Rows 里保留原始值，数值化在解析侧做。
type SourceTable struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

// ColumnIndex 返回列名到下标的映射。
func (t *SourceTable) ColumnIndex() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		idx[c] = i
	}
	return idx
}
