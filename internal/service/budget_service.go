package service

import (
	"errors"
	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultBudgetThreshold 预算使用率告警阈值的默认值（百分比）。
// 可通过配置 budget.threshold_percentage 覆盖。
const DefaultBudgetThreshold = 80.0

// BudgetService 封装成本中心预算的领域逻辑。
// 设计目标：
// 1. 派生字段（差异额、使用率）只在这里计算，落库与计算始终一致。
// 2. 阈值越线是闩锁语义：首次越线发一次信号，持续超线不重复发，回落后重新武装。
// 3. 修订必须给出理由，历史版本追加保留，修订号走乐观并发检查。
type BudgetService interface {
	Create(costCenterID uint, fiscalYear, periodMonth int, category string,
		budgetAmount decimal.Decimal, actorID uint) (*model.CostCenterBudget, error)
	FindByID(budgetID uint) (*model.CostCenterBudget, error)
	FindCurrent(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error)
	ListByCostCenter(costCenterID uint, fiscalYear int) ([]model.CostCenterBudget, error)

	// RecordActual 更新实际发生额并重算派生字段；首次越过阈值时发出
	// BudgetThresholdExceeded 信号（每次越线恰好一次）。
	RecordActual(budgetID uint, amount decimal.Decimal) (*model.CostCenterBudget, error)

	// Revise 修订预算金额：理由必填，修订号 +1，旧版本追加进历史表。
	Revise(budgetID uint, newAmount decimal.Decimal, justification string, actorID uint) (*model.CostCenterBudget, error)

	// RemainingBudget 剩余预算 = 预算额 - 实际额，超支为负值，不截断。
	RemainingBudget(budget *model.CostCenterBudget) decimal.Decimal

	Revisions(budgetID uint) ([]model.BudgetRevision, error)
}

type budgetService struct {
	budgetRepo repository.CostCenterBudgetRepository
	nodeRepo   repository.OrganizationNodeRepository
	sink       EventSink
	threshold  decimal.Decimal
}

// NewBudgetService 创建预算服务。
// thresholdPercentage <= 0 时回退到默认阈值 80。
func NewBudgetService(budgetRepo repository.CostCenterBudgetRepository, nodeRepo repository.OrganizationNodeRepository,
	sink EventSink, thresholdPercentage float64) BudgetService {
	if sink == nil {
		sink = NopSink{}
	}
	if thresholdPercentage <= 0 {
		thresholdPercentage = DefaultBudgetThreshold
	}
	return &budgetService{
		budgetRepo: budgetRepo,
		nodeRepo:   nodeRepo,
		sink:       sink,
		threshold:  decimal.NewFromFloat(thresholdPercentage),
	}
}

// Create 创建预算行（修订号从 0 开始）。
// 关键规则：
// 1. 月份 1~12，财年为正，金额非负。
// 2. 成本中心必须是已存在的组织节点。
// 3. 同一 (成本中心, 财年, 月份, 类别) 只允许一条当前预算。
func (s *budgetService) Create(costCenterID uint, fiscalYear, periodMonth int, category string,
	budgetAmount decimal.Decimal, actorID uint) (*model.CostCenterBudget, error) {
	if s.budgetRepo == nil || s.nodeRepo == nil {
		return nil, ErrInternal
	}

	category = strings.TrimSpace(category)
	if costCenterID == 0 || actorID == 0 || category == "" {
		return nil, ErrInvalidInput
	}
	if fiscalYear <= 0 || periodMonth < 1 || periodMonth > 12 {
		return nil, ErrInvalidInput
	}
	if budgetAmount.IsNegative() {
		return nil, ErrInvalidInput
	}

	if _, err := s.nodeRepo.FindByID(costCenterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}

	_, err := s.budgetRepo.FindCurrent(costCenterID, fiscalYear, periodMonth, category)
	if err == nil {
		return nil, ErrBudgetAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	budget := &model.CostCenterBudget{
		CostCenterID:          costCenterID,
		FiscalYear:            fiscalYear,
		PeriodMonth:           periodMonth,
		Category:              category,
		BudgetAmount:          budgetAmount,
		ActualAmount:          decimal.Zero,
		VarianceAmount:        budgetAmount.Neg(),
		UtilizationPercentage: decimal.Zero,
		RevisionNumber:        0,
		CreatedBy:             actorID,
	}
	if err := s.budgetRepo.Create(budget); err != nil {
		return nil, err
	}
	return budget, nil
}

func (s *budgetService) FindByID(budgetID uint) (*model.CostCenterBudget, error) {
	if s.budgetRepo == nil {
		return nil, ErrInternal
	}
	if budgetID == 0 {
		return nil, ErrInvalidInput
	}

	budget, err := s.budgetRepo.FindByID(budgetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return budget, nil
}

func (s *budgetService) FindCurrent(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error) {
	if s.budgetRepo == nil {
		return nil, ErrInternal
	}
	if costCenterID == 0 || fiscalYear <= 0 || periodMonth < 1 || periodMonth > 12 {
		return nil, ErrInvalidInput
	}

	budget, err := s.budgetRepo.FindCurrent(costCenterID, fiscalYear, periodMonth, strings.TrimSpace(category))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return budget, nil
}

func (s *budgetService) ListByCostCenter(costCenterID uint, fiscalYear int) ([]model.CostCenterBudget, error) {
	if s.budgetRepo == nil {
		return nil, ErrInternal
	}
	if costCenterID == 0 || fiscalYear <= 0 {
		return nil, ErrInvalidInput
	}
	return s.budgetRepo.FindByCostCenter(costCenterID, fiscalYear)
}

// RecordActual 更新实际发生额并重算派生字段。
// 越线闩锁：之前未越线且本次使用率超过阈值 -> 落库成功后恰好发一次信号；
// 持续超线不再发；使用率回落到阈值以下后闩锁复位，下次越线再发。
func (s *budgetService) RecordActual(budgetID uint, amount decimal.Decimal) (*model.CostCenterBudget, error) {
	budget, err := s.FindByID(budgetID)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, ErrInvalidInput
	}

	wasOver := budget.ThresholdExceeded

	budget.ActualAmount = amount
	budget.VarianceAmount = amount.Sub(budget.BudgetAmount)
	budget.UtilizationPercentage = utilization(amount, budget.BudgetAmount)
	budget.ThresholdExceeded = budget.UtilizationPercentage.GreaterThan(s.threshold)

	if err := s.budgetRepo.UpdateActual(budget); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}

	// 信号在落库成功之后发出，失败的更新不产生通知
	if budget.ThresholdExceeded && !wasOver {
		s.sink.Publish(BudgetThresholdExceeded{
			BudgetID:     budget.ID,
			CostCenterID: budget.CostCenterID,
			Utilization:  budget.UtilizationPercentage,
		})
	}
	return budget, nil
}

// Revise 修订预算金额。
// 关键规则：
// 1. 修订理由必填（空白即拒绝）。
// 2. 修订号 +1，旧版本追加进 budget_revisions，当前行与历史行同一事务写入。
// 3. 并发修订由修订号前置条件兜底，后到的一方拿到 ErrInvalidTransition。
func (s *budgetService) Revise(budgetID uint, newAmount decimal.Decimal, justification string, actorID uint) (*model.CostCenterBudget, error) {
	budget, err := s.FindByID(budgetID)
	if err != nil {
		return nil, err
	}

	justification = strings.TrimSpace(justification)
	if justification == "" || actorID == 0 {
		return nil, ErrInvalidInput
	}
	if newAmount.IsNegative() {
		return nil, ErrInvalidInput
	}

	oldAmount := budget.BudgetAmount

	budget.BudgetAmount = newAmount
	budget.VarianceAmount = budget.ActualAmount.Sub(newAmount)
	budget.UtilizationPercentage = utilization(budget.ActualAmount, newAmount)
	budget.RevisionNumber++
	budget.RevisionJustification = &justification

	revision := &model.BudgetRevision{
		BudgetID:       budget.ID,
		RevisionNumber: budget.RevisionNumber,
		OldAmount:      oldAmount,
		NewAmount:      newAmount,
		Justification:  justification,
		RevisedBy:      actorID,
	}

	if err := s.budgetRepo.Revise(budget, revision); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 读取后、落库前被并发修订（或删除），按过期状态处理
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	s.sink.Publish(BudgetRevisionApprovalRequested{
		BudgetID:      budget.ID,
		RequestedBy:   actorID,
		Justification: justification,
	})
	return budget, nil
}

// RemainingBudget 剩余预算，超支为负，不截断。
func (s *budgetService) RemainingBudget(budget *model.CostCenterBudget) decimal.Decimal {
	if budget == nil {
		return decimal.Zero
	}
	return budget.BudgetAmount.Sub(budget.ActualAmount)
}

func (s *budgetService) Revisions(budgetID uint) ([]model.BudgetRevision, error) {
	if s.budgetRepo == nil {
		return nil, ErrInternal
	}
	if budgetID == 0 {
		return nil, ErrInvalidInput
	}
	return s.budgetRepo.FindRevisions(budgetID)
}

// utilization 使用率 = 实际 / 预算 × 100，预算为 0 时取 0，保留两位小数。
func utilization(actual, budget decimal.Decimal) decimal.Decimal {
	if budget.IsZero() {
		return decimal.Zero
	}
	return actual.Div(budget).Mul(oneHundred).Round(2)
}
