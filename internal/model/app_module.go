package model

import "time"

// AppModule 对应数据库中 app_modules 表，表示后台的一个功能模块
// （如 cost-centers、master-data、admin-center）。
// 每个模块派生出固定的一组权限名：
//
//	"access <key>"、"<key>.view"、"<key>.create"、"<key>.edit"、"<key>.delete"
//
// 所有模块的权限名集合构成“模块权限全集”，角色授权同步只在该全集内整体替换。
type AppModule struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"type:varchar(50);not null;unique" json:"key"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RolePermission 对应数据库中 role_permissions 表，一行表示角色持有的一个权限名。
// 模块权限全集之外的权限名（如报表类权限）不归本系统管理，同步时原样保留。
type RolePermission struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID     uint      `gorm:"not null;uniqueIndex:uniq_role_perm" json:"role_id"`
	Permission string    `gorm:"type:varchar(100);not null;uniqueIndex:uniq_role_perm" json:"permission"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (AppModule) TableName() string {
	return "app_modules"
}

func (RolePermission) TableName() string {
	return "role_permissions"
}
