package model

import "time"

// 组织节点类型枚举。成本中心也是一种组织节点，共用同一棵树。
const (
	NodeTypeDirectorate = "DIRECTORATE"
	NodeTypeDepartment  = "DEPARTMENT"
	NodeTypeUnit        = "UNIT"
	NodeTypeCostCenter  = "COST_CENTER"
)

// OrganizationNode 对应数据库中 organization_nodes 表，表示组织单元/成本中心。
// 树形结构通过 ParentID 指向父节点实现：
//   - Level 恒等于父节点 Level + 1，根节点为 0
//   - HierarchyPath 是物化路径（祖先 ID 链，如 "1/4/9"），用于子树查询
// Level 和 HierarchyPath 由 HierarchyService 维护，其他代码只读不写。
type OrganizationNode struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string    `gorm:"type:varchar(50);not null;unique" json:"code"`
	Name          string    `gorm:"type:varchar(100);not null" json:"name"`
	Type          string    `gorm:"type:varchar(30);not null" json:"type"`
	ParentID      *uint     `gorm:"index" json:"parent_id"`
	Level         int       `gorm:"not null;default:0" json:"level"`
	HierarchyPath string    `gorm:"type:varchar(255);not null" json:"hierarchy_path"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedBy     string    `gorm:"type:varchar(255);not null" json:"created_by"`
	UpdatedBy     string    `gorm:"type:varchar(255);not null" json:"updated_by"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrganizationNodeTree 是组织节点的树形响应节点。
// 与 OrganizationNode（数据库模型）的区别：
//   - 不含审计字段
//   - 增加了 Children 字段，用于嵌套子节点
type OrganizationNodeTree struct {
	ID            uint                    `json:"id"`
	Code          string                  `json:"code"`
	Name          string                  `json:"name"`
	Type          string                  `json:"type"`
	ParentID      *uint                   `json:"parentId"`
	Level         int                     `json:"level"`
	HierarchyPath string                  `json:"hierarchyPath"`
	IsActive      bool                    `json:"isActive"`
	Children      []*OrganizationNodeTree `json:"children"`
}

// TableName 指定 GORM 使用的表名
func (OrganizationNode) TableName() string {
	return "organization_nodes"
}
