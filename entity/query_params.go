package entity

// QueryParams 定义通用的查询参数
type QueryParams struct {
	Page     int `form:"page"`      // 页码
	PageSize int `form:"page_size"` // 每页数量

	// 运行表过滤字段
	Status  string `form:"status"`   // RUNNING|COMPLETED|FAILED|CANCELLED
	ModelID *uint  `form:"model_id"` // 关联模型ID
	SweepID string `form:"sweep_id"` // 网格搜索批次

	// 模型表过滤字段
	Architecture string `form:"architecture"` // dense|bilstm
	Version      string `form:"version"`
	ModelStatus  string `form:"model_status"` // PLACEHOLDER|READY

	// 指标表过滤字段
	MetricName string `form:"metric_name"`
	SplitType  string `form:"split_type"`
	FinalOnly  bool   `form:"final_only"` // 只取 epoch = -1 的收尾指标
}

// GetOffset 计算数据库偏移量
func (p *QueryParams) GetOffset() int {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 10
	}
	return (p.Page - 1) * p.PageSize
}

// GetLimit 获取限制条数
func (p *QueryParams) GetLimit() int {
	if p.PageSize <= 0 {
		p.PageSize = 10
	}
	return p.PageSize
}

// PageResult 通用的分页返回结构
type PageResult struct {
	Total int64       `json:"total"` // 总条数
	List  interface{} `json:"list"`  // 数据列表
}
