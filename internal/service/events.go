package service

import "github.com/shopspring/decimal"

// Event 是核心对外发出的领域信号。
// 信号是“发出即忘”的通知：投递机制（队列、邮件、websocket）由调用方负责，
// 核心只在每次成功落库之后显式发出，不依赖模型钩子之类的隐式触发。
type Event interface {
	EventName() string
}

// EventSink 是领域信号的出口端口。
// service 层只依赖该接口；cmd/server 负责注入具体实现（websocket 广播等）。
type EventSink interface {
	Publish(event Event)
}

// BudgetThresholdExceeded 预算使用率首次越过阈值时发出（每次越线只发一次）。
type BudgetThresholdExceeded struct {
	BudgetID     uint            `json:"budget_id"`
	CostCenterID uint            `json:"cost_center_id"`
	Utilization  decimal.Decimal `json:"utilization"`
}

func (BudgetThresholdExceeded) EventName() string { return "budget.threshold_exceeded" }

// AllocationCompleted 一次分摊执行完成时发出。
type AllocationCompleted struct {
	BatchID       string          `json:"batch_id"`
	RuleID        uint            `json:"rule_id"`
	TotalJournals int             `json:"total_journals"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Summary       string          `json:"summary"`
}

func (AllocationCompleted) EventName() string { return "allocation.completed" }

// AllocationRuleApprovalRequested 分摊规则提交审批时发出。
type AllocationRuleApprovalRequested struct {
	RuleID      uint `json:"rule_id"`
	RequestedBy uint `json:"requested_by"`
}

func (AllocationRuleApprovalRequested) EventName() string { return "allocation_rule.approval_requested" }

// BudgetRevisionApprovalRequested 预算修订落库时发出，供调用方走外部审批流。
type BudgetRevisionApprovalRequested struct {
	BudgetID      uint   `json:"budget_id"`
	RequestedBy   uint   `json:"requested_by"`
	Justification string `json:"justification"`
}

func (BudgetRevisionApprovalRequested) EventName() string { return "budget_revision.approval_requested" }

// NopSink 丢弃所有信号，用于测试和不需要通知的场景。
type NopSink struct{}

func (NopSink) Publish(Event) {}
