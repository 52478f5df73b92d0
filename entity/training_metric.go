package entity

import "time"

const (
	SplitTrain      = "TRAIN"
	SplitValidation = "VALIDATION"
	SplitTest       = "TEST"
)

// FinalEpoch 约定 epoch = -1 表示测试集/收尾指标，
// 与逐 epoch 指标共用一张表。
const FinalEpoch = -1

type TrainingMetric struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	RunID       uint      `gorm:"column:run_id;index" json:"run_id"`
	Epoch       int       `gorm:"column:epoch" json:"epoch"`
	MetricName  string    `gorm:"column:metric_name" json:"metric_name"`
	MetricValue float64   `gorm:"column:metric_value" json:"metric_value"`
	SplitType   string    `gorm:"column:split_type" json:"split_type"`
	Timestamp   time.Time `gorm:"column:timestamp" json:"timestamp"`
}

func (TrainingMetric) TableName() string {
	return "gonzo_training_metrics"
}
