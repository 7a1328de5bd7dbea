package service

import "hospital_backoffice_go/internal/model"

// 审批状态机守卫。
// 合法流转：draft/rejected -> pending -> approved/rejected。
// approved 是终态：不可再流转，记录本身也不可变（编辑/删除返回 ErrImmutable）；
// rejected 允许修改后重新提交。任何路径都不能跳过 pending。

// isSubmittable 当前状态是否允许提交审批。
func isSubmittable(status string) bool {
	return status == model.ApprovalStatusDraft || status == model.ApprovalStatusRejected
}

// isDecidable 当前状态是否允许批准/驳回。
func isDecidable(status string) bool {
	return status == model.ApprovalStatusPending
}

// isMutable 当前状态是否允许编辑/删除。
func isMutable(status string) bool {
	return status == model.ApprovalStatusDraft || status == model.ApprovalStatusRejected
}

// mutationGuard 把不可变状态映射为对应的哨兵错误。
// approved 返回 ErrImmutable；pending 视为流转中，返回 ErrInvalidTransition。
func mutationGuard(status string) error {
	if isMutable(status) {
		return nil
	}
	if status == model.ApprovalStatusApproved {
		return ErrImmutable
	}
	return ErrInvalidTransition
}
