package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 运行状态机：记录落库时即为 RUNNING，之后只允许翻一次到终态。
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
	RunStatusCancelled = "CANCELLED"
)

type TrainingRun struct {
	ID              uint           `gorm:"primaryKey;column:id" json:"id"`
	ModelID         uint           `gorm:"column:model_id;index" json:"model_id"`
	SweepID         string         `gorm:"column:sweep_id;index" json:"sweep_id"` // 网格搜索批次ID，单次运行为空
	Status          string         `gorm:"column:status;index" json:"status"`
	StartTime       time.Time      `gorm:"column:start_time" json:"start_time"`
	EndTime         *time.Time     `gorm:"column:end_time" json:"end_time"` // 终态前为 NULL
	EpochsCompleted int            `gorm:"column:epochs_completed" json:"epochs_completed"`
	Config          datatypes.JSON `gorm:"column:config" json:"config"` // 实验配置快照，保证可复现
	ErrorSummary    string         `gorm:"column:error_summary" json:"error_summary"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (TrainingRun) TableName() string {
	return "gonzo_training_runs"
}

// IsTerminal 判断运行是否已到终态。
func (r *TrainingRun) IsTerminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}
