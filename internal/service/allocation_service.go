package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"
	"sort"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var oneHundred = decimal.NewFromInt(100)

// RuleInput 是创建/更新分摊规则的输入。
type RuleInput struct {
	Code               string
	Name               string
	SourceCostCenterID uint
	AllocationBase     string
	AllocationFormula  *string
	EffectiveDate      time.Time
	EndDate            *time.Time
	Targets            []TargetInput
}

// TargetInput 是单个分摊目标的输入。
type TargetInput struct {
	CostCenterID uint
	Percentage   decimal.Decimal
}

// AllocationService 封装成本分摊规则及其审批、执行的领域逻辑。
// 设计目标：
// 1. 规则的编辑/删除受审批状态守卫：approved 不可变，pending 流转中不可改。
// 2. 提交/审批走带状态前置条件的 CAS 更新，并发冲突统一报 ErrInvalidTransition。
// 3. 分摊金额用最大余额法贴现到两位小数，各目标之和严格等于来源金额，不丢分。
type AllocationService interface {
	CreateRule(input RuleInput, actorID uint) (*model.AllocationRule, error)
	UpdateRule(ruleID uint, input RuleInput) (*model.AllocationRule, error)
	DeleteRule(ruleID uint) error
	FindRule(ruleID uint) (*model.AllocationRule, error)
	ListRules() ([]model.AllocationRule, error)

	// SubmitForApproval 把 draft/rejected 状态的规则送审（-> pending）。
	SubmitForApproval(ruleID, actorID uint) error
	// Decide 批准或驳回 pending 状态的规则。创建人不能审批自己的规则。
	Decide(ruleID, actorID uint, approve bool) (*model.AllocationRule, error)

	// Distribute 按规则把来源金额分配到各目标成本中心（纯计算，不落库）。
	// vars 是公式基础下调用方补充的命名变量。
	Distribute(rule *model.AllocationRule, sourceAmount decimal.Decimal, vars map[string]decimal.Decimal) (map[uint]decimal.Decimal, error)

	// Execute 执行一次分摊：计算分配结果、写入结果行（同一批次）、发出完成信号。
	// 只有已批准且启用的规则可以执行。
	Execute(ruleID uint, period string, sourceAmount decimal.Decimal, vars map[string]decimal.Decimal) ([]model.AllocationJournal, error)
}

type allocationService struct {
	ruleRepo repository.AllocationRuleRepository
	nodeRepo repository.OrganizationNodeRepository
	sink     EventSink
}

func NewAllocationService(ruleRepo repository.AllocationRuleRepository, nodeRepo repository.OrganizationNodeRepository, sink EventSink) AllocationService {
	if sink == nil {
		sink = NopSink{}
	}
	return &allocationService{ruleRepo: ruleRepo, nodeRepo: nodeRepo, sink: sink}
}

// validateRuleInput 校验规则输入并返回规范化后的目标行。
// 关键规则：
// 1. PERCENTAGE：至少一个目标，百分比均为正且合计不超过 100（不足 100 的部分不分配）。
// 2. DIRECT：恰好一个目标，来源金额 1:1 划转。
// 3. FORMULA：公式必填且必须能通过语法解析（受限算术文法，无副作用）。
// 4. 来源与所有目标成本中心必须是已存在的组织节点。
func (s *allocationService) validateRuleInput(input *RuleInput) ([]model.AllocationTarget, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" || input.SourceCostCenterID == 0 {
		return nil, ErrInvalidInput
	}
	if input.EffectiveDate.IsZero() {
		return nil, ErrInvalidInput
	}
	if input.EndDate != nil && input.EndDate.Before(input.EffectiveDate) {
		return nil, ErrInvalidInput
	}

	switch input.AllocationBase {
	case model.AllocationBasePercentage:
		if input.AllocationFormula != nil {
			return nil, ErrInvalidInput
		}
		if len(input.Targets) == 0 {
			return nil, ErrInvalidInput
		}
		sum := decimal.Zero
		for _, t := range input.Targets {
			if !t.Percentage.IsPositive() {
				return nil, ErrInvalidInput
			}
			sum = sum.Add(t.Percentage)
		}
		if sum.GreaterThan(oneHundred) {
			return nil, ErrInvalidInput
		}
	case model.AllocationBaseDirect:
		if input.AllocationFormula != nil {
			return nil, ErrInvalidInput
		}
		if len(input.Targets) != 1 {
			return nil, ErrInvalidInput
		}
	case model.AllocationBaseFormula:
		if input.AllocationFormula == nil || strings.TrimSpace(*input.AllocationFormula) == "" {
			return nil, ErrInvalidInput
		}
		if len(input.Targets) == 0 {
			return nil, ErrInvalidInput
		}
		if _, err := govaluate.NewEvaluableExpression(*input.AllocationFormula); err != nil {
			return nil, ErrInvalidFormula
		}
	default:
		return nil, ErrInvalidInput
	}

	if _, err := s.nodeRepo.FindByID(input.SourceCostCenterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}

	targets := make([]model.AllocationTarget, 0, len(input.Targets))
	for _, t := range input.Targets {
		if t.CostCenterID == 0 {
			return nil, ErrInvalidInput
		}
		if _, err := s.nodeRepo.FindByID(t.CostCenterID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNodeNotFound
			}
			return nil, err
		}
		targets = append(targets, model.AllocationTarget{
			TargetCostCenterID: t.CostCenterID,
			Percentage:         t.Percentage,
		})
	}
	return targets, nil
}

// CreateRule 创建分摊规则，初始状态为 draft。
func (s *allocationService) CreateRule(input RuleInput, actorID uint) (*model.AllocationRule, error) {
	if s.ruleRepo == nil || s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if actorID == 0 {
		return nil, ErrInvalidInput
	}

	targets, err := s.validateRuleInput(&input)
	if err != nil {
		return nil, err
	}

	// 先检查编码是否已存在，避免数据库唯一键报错直接外泄。
	_, err = s.ruleRepo.FindByCode(input.Code)
	if err == nil {
		return nil, ErrRuleAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rule := &model.AllocationRule{
		Code:               input.Code,
		Name:               input.Name,
		SourceCostCenterID: input.SourceCostCenterID,
		AllocationBase:     input.AllocationBase,
		AllocationFormula:  input.AllocationFormula,
		IsActive:           true,
		EffectiveDate:      input.EffectiveDate,
		EndDate:            input.EndDate,
		ApprovalStatus:     model.ApprovalStatusDraft,
		CreatedBy:          actorID,
		Targets:            targets,
	}
	if err := s.ruleRepo.Create(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule 更新分摊规则。
// 落库前重新读取当前状态做守卫：approved 返回 ErrImmutable，pending 返回 ErrInvalidTransition。
func (s *allocationService) UpdateRule(ruleID uint, input RuleInput) (*model.AllocationRule, error) {
	if s.ruleRepo == nil || s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if ruleID == 0 {
		return nil, ErrInvalidInput
	}

	rule, err := s.FindRule(ruleID)
	if err != nil {
		return nil, err
	}
	if err := mutationGuard(rule.ApprovalStatus); err != nil {
		return nil, err
	}

	input.Code = rule.Code // 编码一经创建不可修改
	targets, err := s.validateRuleInput(&input)
	if err != nil {
		return nil, err
	}

	rule.Name = input.Name
	rule.AllocationBase = input.AllocationBase
	rule.AllocationFormula = input.AllocationFormula
	rule.EffectiveDate = input.EffectiveDate
	rule.EndDate = input.EndDate

	if err := s.ruleRepo.Update(rule, targets); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return s.FindRule(ruleID)
}

// DeleteRule 删除分摊规则，受与编辑相同的状态守卫。
func (s *allocationService) DeleteRule(ruleID uint) error {
	if s.ruleRepo == nil {
		return ErrInternal
	}
	if ruleID == 0 {
		return ErrInvalidInput
	}

	rule, err := s.FindRule(ruleID)
	if err != nil {
		return err
	}
	if err := mutationGuard(rule.ApprovalStatus); err != nil {
		return err
	}

	if err := s.ruleRepo.Delete(ruleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRuleNotFound
		}
		return err
	}
	return nil
}

func (s *allocationService) FindRule(ruleID uint) (*model.AllocationRule, error) {
	if s.ruleRepo == nil {
		return nil, ErrInternal
	}
	if ruleID == 0 {
		return nil, ErrInvalidInput
	}

	rule, err := s.ruleRepo.FindByID(ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *allocationService) ListRules() ([]model.AllocationRule, error) {
	if s.ruleRepo == nil {
		return nil, ErrInternal
	}
	return s.ruleRepo.FindAll()
}

// SubmitForApproval 把规则送审。
// 状态前置条件（draft/rejected）由 CAS 更新在数据库侧兜底：
// 并发提交时只有一方命中，另一方拿到 ErrInvalidTransition。
func (s *allocationService) SubmitForApproval(ruleID, actorID uint) error {
	if s.ruleRepo == nil {
		return ErrInternal
	}
	if ruleID == 0 || actorID == 0 {
		return ErrInvalidInput
	}

	// 落库前重读当前状态，快速失败；真正的守卫在 CAS 的 WHERE 条件里
	rule, err := s.FindRule(ruleID)
	if err != nil {
		return err
	}
	if !isSubmittable(rule.ApprovalStatus) {
		return ErrInvalidTransition
	}

	err = s.ruleRepo.UpdateStatusWhere(ruleID,
		[]string{model.ApprovalStatusDraft, model.ApprovalStatusRejected},
		repository.StatusStamp{Status: model.ApprovalStatusPending})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return ErrInvalidTransition
		}
		return err
	}

	s.sink.Publish(AllocationRuleApprovalRequested{RuleID: ruleID, RequestedBy: actorID})
	return nil
}

// Decide 批准或驳回规则。
// 关键规则：
// 1. 创建人审批自己的规则一律拒绝（ErrSelfApprovalForbidden），与当前状态无关。
// 2. 只有 pending 可以裁决；批准盖章 ApprovedBy/ApprovedAt，驳回清空两者、允许重新送审。
// 3. 状态流转走 CAS，并发裁决只有一方生效。
func (s *allocationService) Decide(ruleID, actorID uint, approve bool) (*model.AllocationRule, error) {
	if s.ruleRepo == nil {
		return nil, ErrInternal
	}
	if ruleID == 0 || actorID == 0 {
		return nil, ErrInvalidInput
	}

	rule, err := s.FindRule(ruleID)
	if err != nil {
		return nil, err
	}
	if rule.CreatedBy == actorID {
		return nil, ErrSelfApprovalForbidden
	}
	if !isDecidable(rule.ApprovalStatus) {
		return nil, ErrInvalidTransition
	}

	stamp := repository.StatusStamp{Status: model.ApprovalStatusRejected}
	if approve {
		now := time.Now()
		stamp = repository.StatusStamp{
			Status:     model.ApprovalStatusApproved,
			ApprovedBy: &actorID,
			ApprovedAt: &now,
		}
	}

	err = s.ruleRepo.UpdateStatusWhere(ruleID, []string{model.ApprovalStatusPending}, stamp)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	return s.FindRule(ruleID)
}

// Distribute 按规则分配来源金额（纯计算）。
// 金额不变量：所有输出之和严格等于应分配总额，分到最后一分钱；
// 贴现余数确定性地补给金额最大的目标（并列时取靠前者）。
func (s *allocationService) Distribute(rule *model.AllocationRule, sourceAmount decimal.Decimal, vars map[string]decimal.Decimal) (map[uint]decimal.Decimal, error) {
	if rule == nil {
		return nil, ErrInvalidInput
	}
	if sourceAmount.IsNegative() {
		return nil, ErrInvalidInput
	}
	if len(rule.Targets) == 0 {
		return nil, ErrInvalidInput
	}

	switch rule.AllocationBase {
	case model.AllocationBaseDirect:
		if len(rule.Targets) != 1 {
			return nil, ErrInvalidInput
		}
		return map[uint]decimal.Decimal{
			rule.Targets[0].TargetCostCenterID: sourceAmount.Round(2),
		}, nil

	case model.AllocationBasePercentage:
		raw := make([]decimal.Decimal, len(rule.Targets))
		for i, t := range rule.Targets {
			raw[i] = sourceAmount.Mul(t.Percentage).Div(oneHundred)
		}
		rounded := apportion(raw)
		out := make(map[uint]decimal.Decimal, len(rule.Targets))
		for i, t := range rule.Targets {
			out[t.TargetCostCenterID] = rounded[i]
		}
		return out, nil

	case model.AllocationBaseFormula:
		if rule.AllocationFormula == nil {
			return nil, ErrInvalidFormula
		}
		expr, err := govaluate.NewEvaluableExpression(*rule.AllocationFormula)
		if err != nil {
			return nil, ErrInvalidFormula
		}

		// 先全部求值、再统一返回：任何一个目标失败整次分摊都不生效
		out := make(map[uint]decimal.Decimal, len(rule.Targets))
		for _, t := range rule.Targets {
			params := map[string]interface{}{
				"source_amount": toFloat(sourceAmount),
				"percentage":    toFloat(t.Percentage),
			}
			for k, v := range vars {
				params[k] = toFloat(v)
			}
			value, err := expr.Evaluate(params)
			if err != nil {
				return nil, ErrInvalidFormula
			}
			f, ok := value.(float64)
			if !ok || f < 0 {
				return nil, ErrInvalidFormula
			}
			out[t.TargetCostCenterID] = decimal.NewFromFloat(f).Round(2)
		}
		return out, nil

	default:
		return nil, ErrInvalidInput
	}
}

// Execute 执行一次分摊并写入结果行。
// 落库前重新读取规则（状态可能刚被并发驳回），只执行 approved 且启用的规则。
func (s *allocationService) Execute(ruleID uint, period string, sourceAmount decimal.Decimal, vars map[string]decimal.Decimal) ([]model.AllocationJournal, error) {
	if s.ruleRepo == nil {
		return nil, ErrInternal
	}
	period = strings.TrimSpace(period)
	if period == "" {
		return nil, ErrInvalidInput
	}
	if _, err := time.Parse("2006-01", period); err != nil {
		return nil, ErrInvalidInput
	}

	rule, err := s.FindRule(ruleID)
	if err != nil {
		return nil, err
	}
	if rule.ApprovalStatus != model.ApprovalStatusApproved || !rule.IsActive {
		return nil, ErrInvalidTransition
	}

	amounts, err := s.Distribute(rule, sourceAmount, vars)
	if err != nil {
		return nil, err
	}

	batchID, err := newBatchID()
	if err != nil {
		return nil, err
	}

	// 按目标行顺序写入，保证结果行顺序稳定
	journals := make([]model.AllocationJournal, 0, len(amounts))
	total := decimal.Zero
	for _, t := range rule.Targets {
		amount, ok := amounts[t.TargetCostCenterID]
		if !ok {
			continue
		}
		journals = append(journals, model.AllocationJournal{
			BatchID:      batchID,
			RuleID:       rule.ID,
			Period:       period,
			CostCenterID: t.TargetCostCenterID,
			Amount:       amount,
		})
		total = total.Add(amount)
	}

	if err := s.ruleRepo.CreateJournals(journals); err != nil {
		return nil, err
	}

	s.sink.Publish(AllocationCompleted{
		BatchID:       batchID,
		RuleID:        rule.ID,
		TotalJournals: len(journals),
		TotalAmount:   total,
		Summary:       fmt.Sprintf("rule %s allocated %s to %d cost centers for %s", rule.Code, total.String(), len(journals), period),
	})
	return journals, nil
}

// apportion 最大余额法：先整体截断到两位小数，再把丢失的分币按
// 小数余额从大到小补回，余数并列时按原始金额大者优先、再按序号靠前优先。
// 输出之和严格等于输入之和（四舍五入到两位小数后的值）。
func apportion(raw []decimal.Decimal) []decimal.Decimal {
	total := decimal.Zero
	for _, v := range raw {
		total = total.Add(v)
	}
	total = total.Round(2)

	out := make([]decimal.Decimal, len(raw))
	floored := decimal.Zero
	type rem struct {
		idx      int
		fraction decimal.Decimal
		amount   decimal.Decimal
	}
	rems := make([]rem, len(raw))
	for i, v := range raw {
		out[i] = v.RoundDown(2)
		floored = floored.Add(out[i])
		rems[i] = rem{idx: i, fraction: v.Sub(out[i]), amount: v}
	}

	cents := total.Sub(floored).Mul(oneHundred).Round(0).IntPart()
	if cents <= 0 {
		return out
	}

	sort.SliceStable(rems, func(a, b int) bool {
		if !rems[a].fraction.Equal(rems[b].fraction) {
			return rems[a].fraction.GreaterThan(rems[b].fraction)
		}
		return rems[a].amount.GreaterThan(rems[b].amount)
	})

	cent := decimal.New(1, -2)
	for i := int64(0); i < cents; i++ {
		idx := rems[i%int64(len(rems))].idx
		out[idx] = out[idx].Add(cent)
	}
	return out
}

// newBatchID 生成一次分摊执行的批次号。
func newBatchID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate batch id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// toFloat 把 decimal 转成公式引擎需要的 float64。
// 仅用于公式求值的入参，结果立即回转 decimal，不参与后续货币运算。
func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
