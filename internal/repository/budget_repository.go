package repository

import (
	"fmt"
	"hospital_backoffice_go/internal/model"

	"gorm.io/gorm"
)

// CostCenterBudgetRepository 定义成本中心预算的持久化操作接口。
// cost_center_budgets 表只保存每个 (成本中心, 财年, 月份, 类别) 的当前版本，
// 历史修订追加在 budget_revisions 表，修订操作必须在一个事务内同时写两张表。
type CostCenterBudgetRepository interface {
	Create(budget *model.CostCenterBudget) error
	FindByID(id uint) (*model.CostCenterBudget, error)
	// FindCurrent 按四元组查当前预算行。
	FindCurrent(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error)
	FindByCostCenter(costCenterID uint, fiscalYear int) ([]model.CostCenterBudget, error)

	// UpdateActual 更新实际数及派生字段（actual_amount、variance_amount、
	// utilization_percentage、threshold_exceeded）。
	UpdateActual(budget *model.CostCenterBudget) error

	// Revise 在一个事务内更新预算行（金额、修订号、修订理由）并追加历史行。
	// 要么两张表都写成功，要么保持原状。
	Revise(budget *model.CostCenterBudget, revision *model.BudgetRevision) error

	FindRevisions(budgetID uint) ([]model.BudgetRevision, error)
}

// costCenterBudgetRepository 成本中心预算仓库实现
type costCenterBudgetRepository struct {
	db *gorm.DB
}

func NewCostCenterBudgetRepository(db *gorm.DB) CostCenterBudgetRepository {
	return &costCenterBudgetRepository{db: db}
}

func (r *costCenterBudgetRepository) Create(budget *model.CostCenterBudget) error {
	if budget == nil {
		return fmt.Errorf("budget is nil")
	}
	if budget.CostCenterID == 0 {
		return fmt.Errorf("cost center id is required")
	}
	return r.db.Create(budget).Error
}

func (r *costCenterBudgetRepository) FindByID(id uint) (*model.CostCenterBudget, error) {
	if id == 0 {
		return nil, fmt.Errorf("budget id is required")
	}

	var budget model.CostCenterBudget
	if err := r.db.Where("id = ?", id).First(&budget).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

func (r *costCenterBudgetRepository) FindCurrent(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error) {
	if costCenterID == 0 {
		return nil, fmt.Errorf("cost center id is required")
	}

	var budget model.CostCenterBudget
	if err := r.db.
		Where("cost_center_id = ? AND fiscal_year = ? AND period_month = ? AND category = ?",
			costCenterID, fiscalYear, periodMonth, category).
		First(&budget).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

func (r *costCenterBudgetRepository) FindByCostCenter(costCenterID uint, fiscalYear int) ([]model.CostCenterBudget, error) {
	if costCenterID == 0 {
		return nil, fmt.Errorf("cost center id is required")
	}

	var budgets []model.CostCenterBudget
	if err := r.db.
		Where("cost_center_id = ? AND fiscal_year = ?", costCenterID, fiscalYear).
		Order("period_month ASC, category ASC").
		Find(&budgets).Error; err != nil {
		return nil, err
	}
	return budgets, nil
}

// UpdateActual 更新实际数及派生字段。
// 使用 Select 限定字段，避免误覆盖预算金额和修订信息。
// 如果 ID 不存在，返回 gorm.ErrRecordNotFound。
func (r *costCenterBudgetRepository) UpdateActual(budget *model.CostCenterBudget) error {
	if budget == nil {
		return fmt.Errorf("budget is nil")
	}
	if budget.ID == 0 {
		return fmt.Errorf("budget id is required")
	}

	tx := r.db.Model(&model.CostCenterBudget{}).
		Where("id = ?", budget.ID).
		Select("actual_amount", "variance_amount", "utilization_percentage", "threshold_exceeded").
		Updates(budget)

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Revise 在事务中先更新当前行，再追加历史行。
// WHERE 子句同时限定 id 和修订号：两个调用方并发修订同一预算时，
// 后到的一方命中 0 行，整个事务回滚（乐观并发检查）。
func (r *costCenterBudgetRepository) Revise(budget *model.CostCenterBudget, revision *model.BudgetRevision) error {
	if budget == nil || revision == nil {
		return fmt.Errorf("budget or revision is nil")
	}
	if budget.ID == 0 {
		return fmt.Errorf("budget id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CostCenterBudget{}).
			Where("id = ? AND revision_number = ?", budget.ID, budget.RevisionNumber-1).
			Select("budget_amount", "variance_amount", "utilization_percentage", "revision_number", "revision_justification").
			Updates(budget)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Create(revision).Error
	})
}

func (r *costCenterBudgetRepository) FindRevisions(budgetID uint) ([]model.BudgetRevision, error) {
	if budgetID == 0 {
		return nil, fmt.Errorf("budget id is required")
	}

	var revisions []model.BudgetRevision
	if err := r.db.Where("budget_id = ?", budgetID).Order("revision_number ASC").Find(&revisions).Error; err != nil {
		return nil, err
	}
	return revisions, nil
}
