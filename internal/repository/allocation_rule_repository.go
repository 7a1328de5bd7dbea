package repository

import (
	"errors"
	"fmt"
	"hospital_backoffice_go/internal/model"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrStaleStatus 表示状态条件更新没有命中任何行：
	// 规则当前状态已不是调用方看到的状态（并发提交/审批），或记录不存在。
	ErrStaleStatus = errors.New("allocation rule status changed concurrently")
)

// StatusStamp 是一次审批状态变更要写入的字段集。
// ApprovedBy/ApprovedAt 在批准时填充、驳回时清空。
type StatusStamp struct {
	Status     string
	ApprovedBy *uint
	ApprovedAt *time.Time
}

// AllocationRuleRepository 定义分摊规则的持久化操作接口。
// 审批状态的变更全部走 UpdateStatusWhere（带状态前置条件的 CAS 更新），
// 防止两个调用方并发提交/审批同一条规则时互相覆盖。
type AllocationRuleRepository interface {
	// Create 在一个事务内写入规则及其目标行。
	Create(rule *model.AllocationRule) error
	FindAll() ([]model.AllocationRule, error)
	FindByID(id uint) (*model.AllocationRule, error)
	FindByCode(code string) (*model.AllocationRule, error)

	// Update 更新规则的业务字段（name、allocation_base、allocation_formula、
	// is_active、effective_date、end_date）并整体替换目标行。
	// 状态守卫（仅 draft/rejected 可改）由 service 层负责。
	Update(rule *model.AllocationRule, targets []model.AllocationTarget) error

	// UpdateStatusWhere 仅当规则当前状态等于 fromStatus 时应用 stamp。
	// 没有命中任何行时返回 ErrStaleStatus（乐观并发检查）。
	UpdateStatusWhere(ruleID uint, fromStatuses []string, stamp StatusStamp) error

	// Delete 删除规则及其目标行（事务）。
	Delete(ruleID uint) error

	// CreateJournals 在一个事务内写入一批分摊结果行（同一 BatchID）。
	CreateJournals(journals []model.AllocationJournal) error
	FindJournalsByBatch(batchID string) ([]model.AllocationJournal, error)
}

// allocationRuleRepository 分摊规则仓库实现
type allocationRuleRepository struct {
	db *gorm.DB
}

func NewAllocationRuleRepository(db *gorm.DB) AllocationRuleRepository {
	return &allocationRuleRepository{db: db}
}

func (r *allocationRuleRepository) Create(rule *model.AllocationRule) error {
	if rule == nil {
		return fmt.Errorf("rule is nil")
	}
	if rule.Code == "" {
		return fmt.Errorf("rule code is required")
	}
	// gorm 会级联写入 Targets 关联行，外层事务保证整体原子
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(rule).Error
	})
}

func (r *allocationRuleRepository) FindAll() ([]model.AllocationRule, error) {
	var rules []model.AllocationRule
	if err := r.db.Preload("Targets").Order("id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *allocationRuleRepository) FindByID(id uint) (*model.AllocationRule, error) {
	if id == 0 {
		return nil, fmt.Errorf("rule id is required")
	}

	var rule model.AllocationRule
	if err := r.db.Preload("Targets").Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *allocationRuleRepository) FindByCode(code string) (*model.AllocationRule, error) {
	if code == "" {
		return nil, fmt.Errorf("rule code is required")
	}

	var rule model.AllocationRule
	if err := r.db.Preload("Targets").Where("code = ?", code).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update 在事务中更新规则业务字段并整体替换目标行。
// 整体替换而非增量修改：调用方每次提交完整的目标集合，语义简单且不会残留脏行。
func (r *allocationRuleRepository) Update(rule *model.AllocationRule, targets []model.AllocationTarget) error {
	if rule == nil {
		return fmt.Errorf("allocation rule is nil")
	}
	if rule.ID == 0 {
		return fmt.Errorf("rule id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.AllocationRule{}).
			Where("id = ?", rule.ID).
			Select("name", "allocation_base", "allocation_formula", "is_active", "effective_date", "end_date").
			Updates(rule)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Where("rule_id = ?", rule.ID).Delete(&model.AllocationTarget{}).Error; err != nil {
			return err
		}
		for i := range targets {
			targets[i].ID = 0
			targets[i].RuleID = rule.ID
		}
		if len(targets) > 0 {
			if err := tx.Create(&targets).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateStatusWhere 带状态前置条件的更新（compare-and-swap）。
// WHERE 子句同时限定 id 和当前状态，RowsAffected == 0 即判定为并发冲突或记录不存在，
// 由 service 层统一映射为“非法状态流转”。
func (r *allocationRuleRepository) UpdateStatusWhere(ruleID uint, fromStatuses []string, stamp StatusStamp) error {
	if ruleID == 0 {
		return fmt.Errorf("rule id is required")
	}
	if len(fromStatuses) == 0 {
		return fmt.Errorf("from statuses are required")
	}

	res := r.db.Model(&model.AllocationRule{}).
		Where("id = ? AND approval_status IN ?", ruleID, fromStatuses).
		Updates(map[string]interface{}{
			"approval_status": stamp.Status,
			"approved_by":     stamp.ApprovedBy,
			"approved_at":     stamp.ApprovedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *allocationRuleRepository) Delete(ruleID uint) error {
	if ruleID == 0 {
		return fmt.Errorf("rule id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var current model.AllocationRule
		if err := tx.Where("id = ?", ruleID).First(&current).Error; err != nil {
			return err
		}

		if err := tx.Where("rule_id = ?", ruleID).Delete(&model.AllocationTarget{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", ruleID).Delete(&model.AllocationRule{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *allocationRuleRepository) CreateJournals(journals []model.AllocationJournal) error {
	if len(journals) == 0 {
		return fmt.Errorf("journals are empty")
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&journals).Error
	})
}

func (r *allocationRuleRepository) FindJournalsByBatch(batchID string) ([]model.AllocationJournal, error) {
	if batchID == "" {
		return nil, fmt.Errorf("batch id is required")
	}

	var journals []model.AllocationJournal
	if err := r.db.Where("batch_id = ?", batchID).Order("id ASC").Find(&journals).Error; err != nil {
		return nil, err
	}
	return journals, nil
}
