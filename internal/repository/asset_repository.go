package repository

import (
	"fmt"
	"hospital_backoffice_go/internal/model"

	"gorm.io/gorm"
)

// AssetRepository 定义固定资产的持久化操作接口。
// 资产调拨是追加式审计日志：写入 asset_movements 的同时更新资产当前位置，
// 两者必须在同一事务内完成。
type AssetRepository interface {
	Create(asset *model.Asset) error
	FindAll() ([]model.Asset, error)
	FindByID(id uint) (*model.Asset, error)
	FindByCode(code string) (*model.Asset, error)

	// Update 更新资产基础信息（name、residual_value、useful_life_years、
	// depreciation_method、updated_by）。
	Update(asset *model.Asset) error

	// RecordMovement 在一个事务内追加调拨记录并更新资产的 current_location_id。
	RecordMovement(movement *model.AssetMovement) error
	FindMovements(assetID uint) ([]model.AssetMovement, error)
}

// assetRepository 固定资产仓库实现
type assetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) Create(asset *model.Asset) error {
	if asset == nil {
		return fmt.Errorf("asset is nil")
	}
	if asset.Code == "" {
		return fmt.Errorf("asset code is required")
	}
	return r.db.Create(asset).Error
}

func (r *assetRepository) FindAll() ([]model.Asset, error) {
	var assets []model.Asset
	if err := r.db.Order("id ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *assetRepository) FindByID(id uint) (*model.Asset, error) {
	if id == 0 {
		return nil, fmt.Errorf("asset id is required")
	}

	var asset model.Asset
	if err := r.db.Where("id = ?", id).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepository) FindByCode(code string) (*model.Asset, error) {
	if code == "" {
		return nil, fmt.Errorf("asset code is required")
	}

	var asset model.Asset
	if err := r.db.Where("code = ?", code).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// Update 更新资产的可变字段。
// 使用 Select 限定字段，取得值和取得日期一经写入不再修改。
// 如果 ID 不存在，返回 gorm.ErrRecordNotFound。
func (r *assetRepository) Update(asset *model.Asset) error {
	if asset == nil {
		return fmt.Errorf("asset is nil")
	}
	if asset.ID == 0 {
		return fmt.Errorf("asset id is required")
	}

	tx := r.db.Model(&model.Asset{}).
		Where("id = ?", asset.ID).
		Select("name", "residual_value", "useful_life_years", "depreciation_method", "updated_by").
		Updates(asset)

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordMovement 在事务中先确认资产存在、追加调拨记录、再更新当前位置。
// FromLocationID 取自资产当前位置，由本方法填充而不是信任调用方。
func (r *assetRepository) RecordMovement(movement *model.AssetMovement) error {
	if movement == nil {
		return fmt.Errorf("movement is nil")
	}
	if movement.AssetID == 0 {
		return fmt.Errorf("asset id is required")
	}
	if movement.ToLocationID == 0 {
		return fmt.Errorf("to location id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var asset model.Asset
		if err := tx.Where("id = ?", movement.AssetID).First(&asset).Error; err != nil {
			return err
		}

		movement.FromLocationID = asset.CurrentLocationID
		if err := tx.Create(movement).Error; err != nil {
			return err
		}

		return tx.Model(&model.Asset{}).
			Where("id = ?", movement.AssetID).
			Update("current_location_id", movement.ToLocationID).Error
	})
}

func (r *assetRepository) FindMovements(assetID uint) ([]model.AssetMovement, error) {
	if assetID == 0 {
		return nil, fmt.Errorf("asset id is required")
	}

	var movements []model.AssetMovement
	if err := r.db.Where("asset_id = ?", assetID).Order("id ASC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
