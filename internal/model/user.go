package model

import "time"

// User 对应数据库中users表
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(255);not null;unique" json:"username"`
	Password string `gorm:"type:varchar(255);not null" json:"-"` // Hide password in json output
	Role     string `gorm:"type:enum('USER', 'ADMIN');default:'USER'" json:"role"`
	// CostCenterID 是用户归属的成本中心（组织节点），可为空表示未分配。
	CostCenterID *uint     `gorm:"index" json:"costCenterId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定 GORM 使用的表名
func (User) TableName() string {
	return "users"
}
