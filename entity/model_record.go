package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 模型记录状态：训练开始前先落一条 PLACEHOLDER 占位，
// 训练评估成功、产出物保存后才翻成 READY。
const (
	ModelStatusPlaceholder = "PLACEHOLDER"
	ModelStatusReady       = "READY"
)

type ModelRecord struct {
	ID           uint           `gorm:"primaryKey;column:id" json:"id"`
	Name         string         `gorm:"column:name" json:"name"`
	Version      string         `gorm:"column:version;index" json:"version"` // {architecture}_{timestamp}
	Status       string         `gorm:"column:status;index" json:"status"`
	Architecture string         `gorm:"column:architecture" json:"architecture"`
	ArtifactPath string         `gorm:"column:artifact_path" json:"artifact_path"`
	Config       datatypes.JSON `gorm:"column:config" json:"config"`               // 训练时解析后的完整实验配置快照
	FinalMetrics datatypes.JSON `gorm:"column:final_metrics" json:"final_metrics"` // 测试集最终指标
	Description  *string        `gorm:"column:description" json:"description"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ModelRecord) TableName() string {
	return "gonzo_models"
}
