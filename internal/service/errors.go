package service

import "errors"

// 哨兵错误：对外统一语义，隐藏底层实现细节。
// 业务规则类错误在违规点同步返回，不做自动重试，由 handler 层映射为用户可见的提示。
var (
	// ErrInvalidInput 输入缺失或不合法（如空白的修订理由、百分比之和超过 100）
	ErrInvalidInput = errors.New("invalid input")

	// ErrNodeNotFound 组织节点不存在
	ErrNodeNotFound = errors.New("organization node not found")
	// ErrNodeAlreadyExists 组织节点编码已存在
	ErrNodeAlreadyExists = errors.New("organization node already exists")
	// ErrNodeHasChildren 节点下仍有子节点，禁止删除
	ErrNodeHasChildren = errors.New("organization node has children")
	// ErrCircularReference 父节点调整会形成环（节点不能成为自己的祖先）
	ErrCircularReference = errors.New("circular reference in hierarchy")

	// ErrRuleNotFound 分摊规则不存在
	ErrRuleNotFound = errors.New("allocation rule not found")
	// ErrRuleAlreadyExists 分摊规则编码已存在
	ErrRuleAlreadyExists = errors.New("allocation rule already exists")
	// ErrInvalidFormula 分摊公式解析或求值失败（整次分摊不生效）
	ErrInvalidFormula = errors.New("invalid allocation formula")

	// ErrInvalidTransition 审批状态流转不合法（含并发冲突导致的过期状态）
	ErrInvalidTransition = errors.New("invalid approval transition")
	// ErrSelfApprovalForbidden 创建人不能审批自己提交的单据
	ErrSelfApprovalForbidden = errors.New("self approval forbidden")
	// ErrImmutable 已批准的记录不允许编辑或删除
	ErrImmutable = errors.New("approved record is immutable")

	// ErrBudgetNotFound 预算不存在
	ErrBudgetNotFound = errors.New("cost center budget not found")
	// ErrBudgetAlreadyExists 同一期间的预算已存在
	ErrBudgetAlreadyExists = errors.New("cost center budget already exists")

	// ErrAssetNotFound 资产不存在
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetAlreadyExists 资产编码已存在
	ErrAssetAlreadyExists = errors.New("asset already exists")
	// ErrNotDepreciable 资产未配置折旧参数（年限或方法为空）
	ErrNotDepreciable = errors.New("asset is not depreciable")
)
