package service

import (
	"errors"
	"testing"

	"hospital_backoffice_go/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeBudgetRepo struct {
	createFn           func(budget *model.CostCenterBudget) error
	findByIDFn         func(id uint) (*model.CostCenterBudget, error)
	findCurrentFn      func(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error)
	findByCostCenterFn func(costCenterID uint, fiscalYear int) ([]model.CostCenterBudget, error)
	updateActualFn     func(budget *model.CostCenterBudget) error
	reviseFn           func(budget *model.CostCenterBudget, revision *model.BudgetRevision) error
	findRevisionsFn    func(budgetID uint) ([]model.BudgetRevision, error)
}

func (f *fakeBudgetRepo) Create(budget *model.CostCenterBudget) error {
	if f.createFn != nil {
		return f.createFn(budget)
	}
	return nil
}
func (f *fakeBudgetRepo) FindByID(id uint) (*model.CostCenterBudget, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(id)
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeBudgetRepo) FindCurrent(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error) {
	if f.findCurrentFn != nil {
		return f.findCurrentFn(costCenterID, fiscalYear, periodMonth, category)
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeBudgetRepo) FindByCostCenter(costCenterID uint, fiscalYear int) ([]model.CostCenterBudget, error) {
	if f.findByCostCenterFn != nil {
		return f.findByCostCenterFn(costCenterID, fiscalYear)
	}
	return []model.CostCenterBudget{}, nil
}
func (f *fakeBudgetRepo) UpdateActual(budget *model.CostCenterBudget) error {
	if f.updateActualFn != nil {
		return f.updateActualFn(budget)
	}
	return nil
}
func (f *fakeBudgetRepo) Revise(budget *model.CostCenterBudget, revision *model.BudgetRevision) error {
	if f.reviseFn != nil {
		return f.reviseFn(budget, revision)
	}
	return nil
}
func (f *fakeBudgetRepo) FindRevisions(budgetID uint) ([]model.BudgetRevision, error) {
	if f.findRevisionsFn != nil {
		return f.findRevisionsFn(budgetID)
	}
	return []model.BudgetRevision{}, nil
}

// budgetRepoWith 返回一个固定预算行的仓库；FindByID 始终返回同一个指针，
// 连续调用之间状态可以延续，用于阈值闩锁测试。
func budgetRepoWith(budget *model.CostCenterBudget) *fakeBudgetRepo {
	return &fakeBudgetRepo{
		findByIDFn: func(id uint) (*model.CostCenterBudget, error) {
			if budget != nil && budget.ID == id {
				return budget, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
	}
}

func TestBudgetService_Create_Success(t *testing.T) {
	repo := &fakeBudgetRepo{
		createFn: func(budget *model.CostCenterBudget) error {
			budget.ID = 1
			return nil
		},
	}
	svc := NewBudgetService(repo, existingNodesRepo(), nil, 80)

	b, err := svc.Create(10, 2025, 6, "OPEX", dec("50000"), 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if b.RevisionNumber != 0 {
		t.Fatalf("new budget revision number = %d, want 0", b.RevisionNumber)
	}
	if !b.ActualAmount.IsZero() || !b.UtilizationPercentage.IsZero() {
		t.Fatalf("new budget should start with zero actuals: %+v", b)
	}
	if !b.VarianceAmount.Equal(dec("-50000")) {
		t.Fatalf("variance = %s, want -50000 (actual - budget)", b.VarianceAmount)
	}
}

func TestBudgetService_Create_Validation(t *testing.T) {
	svc := NewBudgetService(&fakeBudgetRepo{}, existingNodesRepo(), nil, 80)

	cases := []struct {
		name         string
		costCenterID uint
		fiscalYear   int
		periodMonth  int
		category     string
		amount       string
		actorID      uint
	}{
		{"month zero", 10, 2025, 0, "OPEX", "1000", 3},
		{"month thirteen", 10, 2025, 13, "OPEX", "1000", 3},
		{"fiscal year zero", 10, 0, 6, "OPEX", "1000", 3},
		{"blank category", 10, 2025, 6, "   ", "1000", 3},
		{"negative amount", 10, 2025, 6, "OPEX", "-1", 3},
		{"missing actor", 10, 2025, 6, "OPEX", "1000", 0},
	}
	for _, tc := range cases {
		_, err := svc.Create(tc.costCenterID, tc.fiscalYear, tc.periodMonth, tc.category, dec(tc.amount), tc.actorID)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expect ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestBudgetService_Create_DuplicatePeriod(t *testing.T) {
	repo := &fakeBudgetRepo{
		findCurrentFn: func(costCenterID uint, fiscalYear, periodMonth int, category string) (*model.CostCenterBudget, error) {
			return &model.CostCenterBudget{ID: 1}, nil
		},
	}
	svc := NewBudgetService(repo, existingNodesRepo(), nil, 80)

	_, err := svc.Create(10, 2025, 6, "OPEX", dec("1000"), 3)
	if !errors.Is(err, ErrBudgetAlreadyExists) {
		t.Fatalf("expect ErrBudgetAlreadyExists, got %v", err)
	}
}

func TestBudgetService_Create_CostCenterMissing(t *testing.T) {
	svc := NewBudgetService(&fakeBudgetRepo{}, &fakeNodeRepo{}, nil, 80)

	_, err := svc.Create(99, 2025, 6, "OPEX", dec("1000"), 3)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expect ErrNodeNotFound, got %v", err)
	}
}

// TestBudgetService_RecordActual_ThresholdLatch 阈值闩锁：
// 首次越线恰好发一次信号，持续超线沉默，回落后重新武装。
func TestBudgetService_RecordActual_ThresholdLatch(t *testing.T) {
	budget := &model.CostCenterBudget{
		ID:           1,
		CostCenterID: 10,
		BudgetAmount: dec("1000"),
	}
	sink := &captureSink{}
	svc := NewBudgetService(budgetRepoWith(budget), existingNodesRepo(), sink, 80)

	steps := []struct {
		amount     string
		wantEvents int
	}{
		{"700", 0}, // 70%：未越线
		{"850", 1}, // 85%：首次越线，发信号
		{"900", 1}, // 90%：持续超线，沉默
		{"500", 1}, // 50%：回落，闩锁复位
		{"850", 2}, // 85%：再次越线，再发一次
	}
	for _, step := range steps {
		if _, err := svc.RecordActual(1, dec(step.amount)); err != nil {
			t.Fatalf("RecordActual(%s) error = %v", step.amount, err)
		}
		if len(sink.events) != step.wantEvents {
			t.Fatalf("after actual=%s: %d events, want %d", step.amount, len(sink.events), step.wantEvents)
		}
	}

	ev, ok := sink.events[0].(BudgetThresholdExceeded)
	if !ok {
		t.Fatalf("unexpected event type %T", sink.events[0])
	}
	if ev.BudgetID != 1 || ev.CostCenterID != 10 {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
	if !ev.Utilization.Equal(dec("85")) {
		t.Fatalf("event utilization = %s, want 85", ev.Utilization)
	}
}

func TestBudgetService_RecordActual_ExactlyAtThresholdStaysSilent(t *testing.T) {
	budget := &model.CostCenterBudget{ID: 1, CostCenterID: 10, BudgetAmount: dec("1000")}
	sink := &captureSink{}
	svc := NewBudgetService(budgetRepoWith(budget), existingNodesRepo(), sink, 80)

	// 恰好 80% 不算越线（严格大于才触发）
	b, err := svc.RecordActual(1, dec("800"))
	if err != nil {
		t.Fatalf("RecordActual() error = %v", err)
	}
	if b.ThresholdExceeded {
		t.Fatalf("utilization exactly at threshold must not latch")
	}
	if len(sink.events) != 0 {
		t.Fatalf("expect no events, got %d", len(sink.events))
	}
}

func TestBudgetService_RecordActual_ZeroBudgetUtilization(t *testing.T) {
	budget := &model.CostCenterBudget{ID: 1, CostCenterID: 10, BudgetAmount: decimal.Zero}
	sink := &captureSink{}
	svc := NewBudgetService(budgetRepoWith(budget), existingNodesRepo(), sink, 80)

	b, err := svc.RecordActual(1, dec("500"))
	if err != nil {
		t.Fatalf("RecordActual() error = %v", err)
	}
	if !b.UtilizationPercentage.IsZero() {
		t.Fatalf("zero budget utilization = %s, want 0", b.UtilizationPercentage)
	}
	if len(sink.events) != 0 {
		t.Fatalf("zero budget must not trigger threshold events")
	}
}

func TestBudgetService_RecordActual_NegativeAmount(t *testing.T) {
	budget := &model.CostCenterBudget{ID: 1, BudgetAmount: dec("1000")}
	svc := NewBudgetService(budgetRepoWith(budget), existingNodesRepo(), nil, 80)

	_, err := svc.RecordActual(1, dec("-1"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput, got %v", err)
	}
}

func TestBudgetService_RecordActual_NotFound(t *testing.T) {
	svc := NewBudgetService(&fakeBudgetRepo{}, existingNodesRepo(), nil, 80)

	_, err := svc.RecordActual(99, dec("100"))
	if !errors.Is(err, ErrBudgetNotFound) {
		t.Fatalf("expect ErrBudgetNotFound, got %v", err)
	}
}

func TestBudgetService_Revise_Success(t *testing.T) {
	budget := &model.CostCenterBudget{
		ID:           1,
		CostCenterID: 10,
		BudgetAmount: dec("1000"),
		ActualAmount: dec("600"),
	}
	var gotRevision *model.BudgetRevision
	repo := budgetRepoWith(budget)
	repo.reviseFn = func(b *model.CostCenterBudget, revision *model.BudgetRevision) error {
		gotRevision = revision
		return nil
	}
	sink := &captureSink{}
	svc := NewBudgetService(repo, existingNodesRepo(), sink, 80)

	b, err := svc.Revise(1, dec("800"), "vendor price increase", 7)
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if b.RevisionNumber != 1 {
		t.Fatalf("revision number = %d, want 1", b.RevisionNumber)
	}
	if !b.BudgetAmount.Equal(dec("800")) {
		t.Fatalf("budget amount = %s, want 800", b.BudgetAmount)
	}
	if !b.VarianceAmount.Equal(dec("-200")) {
		t.Fatalf("variance = %s, want -200", b.VarianceAmount)
	}
	if !b.UtilizationPercentage.Equal(dec("75")) {
		t.Fatalf("utilization = %s, want 75", b.UtilizationPercentage)
	}
	if b.RevisionJustification == nil || *b.RevisionJustification != "vendor price increase" {
		t.Fatalf("justification not stamped on budget: %+v", b.RevisionJustification)
	}

	if gotRevision == nil {
		t.Fatalf("revision row was not written")
	}
	if gotRevision.RevisionNumber != 1 || gotRevision.RevisedBy != 7 {
		t.Fatalf("unexpected revision row: %+v", gotRevision)
	}
	if !gotRevision.OldAmount.Equal(dec("1000")) || !gotRevision.NewAmount.Equal(dec("800")) {
		t.Fatalf("revision amounts = %s -> %s, want 1000 -> 800", gotRevision.OldAmount, gotRevision.NewAmount)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expect one approval request event, got %d", len(sink.events))
	}
	ev, ok := sink.events[0].(BudgetRevisionApprovalRequested)
	if !ok {
		t.Fatalf("unexpected event type %T", sink.events[0])
	}
	if ev.BudgetID != 1 || ev.RequestedBy != 7 {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestBudgetService_Revise_BlankJustification(t *testing.T) {
	budget := &model.CostCenterBudget{ID: 1, BudgetAmount: dec("1000")}
	svc := NewBudgetService(budgetRepoWith(budget), existingNodesRepo(), nil, 80)

	_, err := svc.Revise(1, dec("800"), "   ", 7)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput for blank justification, got %v", err)
	}
}

// TestBudgetService_Revise_ConcurrentLoser 并发修订：修订号前置条件
// 命中 0 行时按过期状态处理，且不发信号。
func TestBudgetService_Revise_ConcurrentLoser(t *testing.T) {
	budget := &model.CostCenterBudget{ID: 1, BudgetAmount: dec("1000")}
	repo := budgetRepoWith(budget)
	repo.reviseFn = func(b *model.CostCenterBudget, revision *model.BudgetRevision) error {
		return gorm.ErrRecordNotFound
	}
	sink := &captureSink{}
	svc := NewBudgetService(repo, existingNodesRepo(), sink, 80)

	_, err := svc.Revise(1, dec("800"), "concurrent revision", 7)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expect ErrInvalidTransition, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("failed revision must not publish events")
	}
}

func TestBudgetService_RemainingBudget(t *testing.T) {
	svc := NewBudgetService(&fakeBudgetRepo{}, existingNodesRepo(), nil, 80)

	b := &model.CostCenterBudget{BudgetAmount: dec("1000"), ActualAmount: dec("1250")}
	if got := svc.RemainingBudget(b); !got.Equal(dec("-250")) {
		t.Fatalf("remaining = %s, want -250 (overspend stays negative)", got)
	}
	if got := svc.RemainingBudget(nil); !got.IsZero() {
		t.Fatalf("remaining for nil budget = %s, want 0", got)
	}
}
