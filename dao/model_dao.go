package dao

import (
	"context"
	"fmt"
	"strings"

	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ModelDAO struct {
	DB *gorm.DB
}

func NewModelDAO() *ModelDAO {
	return &ModelDAO{
		DB: db.DB,
	}
}

// Save 保存一条模型记录（训练开始前的占位记录也走这里）。
func (d *ModelDAO) Save(ctx context.Context, record *entity.ModelRecord) error {
	if record == nil {
		return ErrNilEntity
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return fmt.Errorf("save model record failed: %w", err)
	}
	if err := dbConn.Create(record).Error; err != nil {
		return fmt.Errorf("save model record failed: %w", err)
	}
	return nil
}

// MarkReady 把占位模型翻成 READY，同时写入产出物路径与最终指标。
// 只允许从 PLACEHOLDER 翻转，重复调用不生效。
func (d *ModelDAO) MarkReady(ctx context.Context, id uint, artifactPath string, finalMetrics datatypes.JSON) error {
	logger := daoLogger().With("dao", "ModelDAO", "method", "MarkReady")
	if id == 0 {
		return ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return fmt.Errorf("mark model ready failed: %w", err)
	}

	result := dbConn.Model(&entity.ModelRecord{}).
		Where("id = ? AND status = ?", id, entity.ModelStatusPlaceholder).
		Updates(map[string]interface{}{
			"status":        entity.ModelStatusReady,
			"artifact_path": artifactPath,
			"final_metrics": finalMetrics,
		})
	if result.Error != nil {
		logger.Error("mark model ready failed: db update", "id", id, "error", result.Error)
		return fmt.Errorf("mark model ready failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Warn("mark model ready skipped: not placeholder", "id", id)
		return gorm.ErrRecordNotFound
	}
	logger.Info("mark model ready success", "id", id, "artifact_path", artifactPath)
	return nil
}

// FindByID 根据主键查询单条模型记录。
func (d *ModelDAO) FindByID(ctx context.Context, id uint) (*entity.ModelRecord, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, fmt.Errorf("find model record by id failed: %w", err)
	}

	var record entity.ModelRecord
	err = dbConn.First(&record, id).Error
	return &record, err
}

// FindByVersion 根据 model_version 查询模型记录（推理加载路径用）。
func (d *ModelDAO) FindByVersion(ctx context.Context, version string) (*entity.ModelRecord, error) {
	if strings.TrimSpace(version) == "" {
		return nil, ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, fmt.Errorf("find model record by version failed: %w", err)
	}

	var record entity.ModelRecord
	err = dbConn.Where("version = ?", version).First(&record).Error
	return &record, err
}

// FindAll 按查询参数分页获取模型记录列表与总数。
func (d *ModelDAO) FindAll(ctx context.Context, params entity.QueryParams) ([]entity.ModelRecord, int64, error) {
	var records []entity.ModelRecord
	var total int64

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("find model records failed: %w", err)
	}

	dbConn = dbConn.Model(&entity.ModelRecord{})

	if arch := strings.TrimSpace(params.Architecture); arch != "" {
		dbConn = dbConn.Where("architecture = ?", arch)
	}
	if version := strings.TrimSpace(params.Version); version != "" {
		dbConn = dbConn.Where("version = ?", version)
	}
	if status := strings.TrimSpace(params.ModelStatus); status != "" {
		dbConn = dbConn.Where("status = ?", status)
	}

	err = dbConn.Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("count model records failed: %w", err)
	}

	offset, limit := pagination(params)
	err = dbConn.Order("id DESC").Offset(offset).Limit(limit).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query model records failed: %w", err)
	}

	return records, total, err
}
