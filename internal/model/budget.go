package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 预算类别枚举。
const (
	BudgetCategoryOperational = "OPERATIONAL"
	BudgetCategoryPersonnel   = "PERSONNEL"
	BudgetCategoryMedical     = "MEDICAL_SUPPLY"
	BudgetCategoryCapital     = "CAPITAL"
)

// CostCenterBudget 对应数据库中 cost_center_budgets 表，表示成本中心某期间的预算。
// (CostCenterID, FiscalYear, PeriodMonth, Category) 四元组唯一标识一条“当前”预算，
// 历史修订版本存放在 budget_revisions 表，本表始终保存最新版本。
// 派生字段维护规则：
//   - VarianceAmount = ActualAmount - BudgetAmount
//   - UtilizationPercentage = ActualAmount / BudgetAmount * 100（预算为 0 时取 0）
//   - ThresholdExceeded 是越线闩锁：首次越过阈值置位并发信号，回落后复位
type CostCenterBudget struct {
	ID                    uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	CostCenterID          uint            `gorm:"not null;uniqueIndex:uniq_budget_period" json:"cost_center_id"`
	FiscalYear            int             `gorm:"not null;uniqueIndex:uniq_budget_period" json:"fiscal_year"`
	PeriodMonth           int             `gorm:"not null;uniqueIndex:uniq_budget_period" json:"period_month"`
	Category              string          `gorm:"type:varchar(30);not null;uniqueIndex:uniq_budget_period" json:"category"`
	BudgetAmount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"budget_amount"`
	ActualAmount          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"actual_amount"`
	VarianceAmount        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"variance_amount"`
	UtilizationPercentage decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0" json:"utilization_percentage"`
	RevisionNumber        int             `gorm:"not null;default:0" json:"revision_number"`
	RevisionJustification *string         `gorm:"type:varchar(500)" json:"revision_justification"`
	ThresholdExceeded     bool            `gorm:"not null;default:false" json:"threshold_exceeded"`
	CreatedBy             uint            `gorm:"not null" json:"created_by"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BudgetRevision 是预算修订的历史行（只追加，不修改不删除）。
// 每次 Revise 成功都会写入一行，记录修订前后的金额和修订理由。
type BudgetRevision struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	BudgetID       uint            `gorm:"not null;index" json:"budget_id"`
	RevisionNumber int             `gorm:"not null" json:"revision_number"`
	OldAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"old_amount"`
	NewAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"new_amount"`
	Justification  string          `gorm:"type:varchar(500);not null" json:"justification"`
	RevisedBy      uint            `gorm:"not null" json:"revised_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (CostCenterBudget) TableName() string {
	return "cost_center_budgets"
}

func (BudgetRevision) TableName() string {
	return "budget_revisions"
}
