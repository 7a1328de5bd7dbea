package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 折旧方法枚举。
const (
	DepreciationStraightLine     = "STRAIGHT_LINE"
	DepreciationDecliningBalance = "DECLINING_BALANCE"
	DepreciationUnitsOfProd      = "UNITS_OF_PRODUCTION"
)

// Asset 对应数据库中 assets 表，表示固定资产。
// UsefulLifeYears 或 DepreciationMethod 为空表示不计提折旧（如土地）。
// 月折旧额、累计折旧、账面净值都是派生值，由 DepreciationService 按需计算，不落库。
type Asset struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Code               string          `gorm:"type:varchar(50);not null;unique" json:"code"`
	Name               string          `gorm:"type:varchar(100);not null" json:"name"`
	AcquisitionValue   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"acquisition_value"`
	AcquisitionDate    time.Time       `gorm:"type:date;not null" json:"acquisition_date"`
	ResidualValue      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"residual_value"`
	UsefulLifeYears    *int            `json:"useful_life_years"`
	DepreciationMethod *string         `gorm:"type:varchar(30)" json:"depreciation_method"`
	CurrentLocationID  *uint           `gorm:"index" json:"current_location_id"`
	CreatedBy          string          `gorm:"type:varchar(255);not null" json:"created_by"`
	UpdatedBy          string          `gorm:"type:varchar(255);not null" json:"updated_by"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AssetMovement 对应数据库中 asset_movements 表，是资产调拨的审计日志（只追加）。
// 写入一条调拨记录的同时更新 Asset.CurrentLocationID，两者在同一事务内完成。
type AssetMovement struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetID        uint      `gorm:"not null;index" json:"asset_id"`
	FromLocationID *uint     `json:"from_location_id"`
	ToLocationID   uint      `gorm:"not null" json:"to_location_id"`
	MovementDate   time.Time `gorm:"type:date;not null" json:"movement_date"`
	Reason         string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedBy      string    `gorm:"type:varchar(255);not null" json:"created_by"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (Asset) TableName() string {
	return "assets"
}

func (AssetMovement) TableName() string {
	return "asset_movements"
}
