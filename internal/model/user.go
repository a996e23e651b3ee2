package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Role 表示用户角色，使用封闭枚举代替裸字符串比较。
type Role int8

const (
	RoleUser      Role = iota // 普通用户
	RoleModerator             // 版主
	RoleAdmin                 // 管理员
)

const (
	roleUserName      = "user"
	roleModeratorName = "moderator"
	roleAdminName     = "admin"
)

// ParseRole 将字符串解析为 Role。
func ParseRole(s string) (Role, error) {
	switch s {
	case roleUserName:
		return RoleUser, nil
	case roleModeratorName:
		return RoleModerator, nil
	case roleAdminName:
		return RoleAdmin, nil
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleModerator:
		return roleModeratorName
	case RoleAdmin:
		return roleAdminName
	default:
		return roleUserName
	}
}

// Value 实现 driver.Valuer，数据库中以字符串存储。
func (r Role) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan 实现 sql.Scanner。
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		parsed, err := ParseRole(string(v))
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case string:
		parsed, err := ParseRole(v)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case nil:
		*r = RoleUser
		return nil
	}
	return fmt.Errorf("cannot scan role from %T", src)
}

// MarshalJSON 序列化为字符串形式。
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON 反序列化并校验取值。
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User 表示系统用户。
//
// 注册时创建（未确认状态），每次重试注册都会覆盖确认码；
// 确认码兑换成功后签发 Token 并持久化在用户记录上。
type User struct {
	ID        uint   `gorm:"primaryKey"`                             // 用户 ID
	Email     string `gorm:"type:varchar(254);uniqueIndex;not null"` // 邮箱（唯一）
	Username  string `gorm:"type:varchar(150);uniqueIndex;not null"` // 用户名（唯一）
	FirstName string `gorm:"type:varchar(150)"`                      // 名
	LastName  string `gorm:"type:varchar(150)"`                      // 姓
	Bio       string `gorm:"type:text"`                              // 简介
	Role      Role   `gorm:"type:varchar(20);default:user"`          // 角色: user / moderator / admin
	IsStaff   bool   `gorm:"default:false"`                          // 后台人员标记（等同 admin 权限）

	ConfirmationCode          string     `gorm:"type:varchar(80)"` // 确认码 bcrypt 哈希（单次有效，重发即覆盖）
	ConfirmationCodeExpiresAt *time.Time // 确认码过期时间
	ConfirmationCodeSentAt    *time.Time // 确认码发送时间

	Token   string `gorm:"type:varchar(500)"` // 最近签发的访问 Token
	TokenID string `gorm:"type:varchar(36)"`  // Token 的 jti，删除用户时用于吊销

	CreatedAt time.Time // 创建时间

	Reviews  []Review  `gorm:"foreignKey:AuthorID"`
	Comments []Comment `gorm:"foreignKey:AuthorID"`
}
