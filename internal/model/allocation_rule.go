package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 分摊基础枚举：按比例 / 直接对应 / 公式计算。
const (
	AllocationBasePercentage = "PERCENTAGE"
	AllocationBaseDirect     = "DIRECT"
	AllocationBaseFormula    = "FORMULA"
)

// 审批状态枚举。状态机：draft/rejected -> pending -> approved/rejected。
// 任何状态都不能跳过 pending 直接到 approved。
const (
	ApprovalStatusDraft    = "DRAFT"
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
)

// AllocationRule 对应数据库中 allocation_rules 表，表示成本分摊规则。
// 关键约束：
//   - 只有 draft/rejected 状态允许编辑和删除，approved 之后不可变
//   - AllocationFormula 仅在 AllocationBase = FORMULA 时必填
//   - ApprovedBy 不能等于 CreatedBy（禁止自审批）
type AllocationRule struct {
	ID                 uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Code               string     `gorm:"type:varchar(50);not null;unique" json:"code"`
	Name               string     `gorm:"type:varchar(100);not null" json:"name"`
	SourceCostCenterID uint       `gorm:"not null;index" json:"source_cost_center_id"`
	AllocationBase     string     `gorm:"type:varchar(20);not null" json:"allocation_base"`
	AllocationFormula  *string    `gorm:"type:varchar(255)" json:"allocation_formula"`
	IsActive           bool       `gorm:"not null;default:true" json:"is_active"`
	EffectiveDate      time.Time  `gorm:"type:date;not null" json:"effective_date"`
	EndDate            *time.Time `gorm:"type:date" json:"end_date"`
	ApprovalStatus     string     `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"approval_status"`
	ApprovedBy         *uint      `json:"approved_by"`
	ApprovedAt         *time.Time `json:"approved_at"`
	CreatedBy          uint       `gorm:"not null" json:"created_by"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Targets []AllocationTarget `gorm:"foreignKey:RuleID" json:"targets"`
}

// AllocationTarget 是分摊规则的目标行：一条规则把来源成本中心的金额
// 分配到多个目标成本中心。PERCENTAGE 基础时各行 Percentage 之和不得超过 100。
type AllocationTarget struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	RuleID             uint            `gorm:"not null;index" json:"rule_id"`
	TargetCostCenterID uint            `gorm:"not null" json:"target_cost_center_id"`
	Percentage         decimal.Decimal `gorm:"type:decimal(8,4);not null" json:"percentage"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllocationJournal 是一次分摊执行产生的结果行（追加写入，不修改）。
// 同一次执行的所有行共享一个 BatchID，行金额之和严格等于来源金额。
type AllocationJournal struct {
	ID           uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID      string          `gorm:"type:varchar(64);not null;index" json:"batch_id"`
	RuleID       uint            `gorm:"not null;index" json:"rule_id"`
	Period       string          `gorm:"type:varchar(7);not null" json:"period"` // 格式 YYYY-MM
	CostCenterID uint            `gorm:"not null;index" json:"cost_center_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (AllocationRule) TableName() string {
	return "allocation_rules"
}

func (AllocationTarget) TableName() string {
	return "allocation_targets"
}

func (AllocationJournal) TableName() string {
	return "allocation_journals"
}
