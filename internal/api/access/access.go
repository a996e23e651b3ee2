// Package access 实现角色与所有权的纯函数判定。
//
// 所有函数只依赖入参，不触达存储；未认证调用方以 nil Identity 表示。
// 401 / 403 的区分由调用方根据 Identity 是否为 nil 决定。
package access

import (
	"github.com/Kashikuroni/api-yamdb/internal/model"
)

// Identity 表示一次请求的认证主体。
type Identity struct {
	UserID   uint
	Username string
	Role     model.Role
	IsStaff  bool
	TokenID  string
}

// IsAdmin 判断是否拥有管理员能力（admin 角色或后台人员标记）。
func IsAdmin(id *Identity) bool {
	return id != nil && (id.Role == model.RoleAdmin || id.IsStaff)
}

// CanManageUsers 判断是否可以管理用户（创建、修改、删除、查看列表）。
func CanManageUsers(id *Identity) bool {
	return IsAdmin(id)
}

// CanWriteCatalog 判断是否可以写作品目录（titles/genres/categories）。
// 读取对所有人开放，不经过本判定。
func CanWriteCatalog(id *Identity) bool {
	return IsAdmin(id)
}

// CanCreateContribution 判断是否可以发布评论或跟帖。
func CanCreateContribution(id *Identity) bool {
	return id != nil
}

// CanModifyContribution 判断是否可以修改或删除指定作者的评论/跟帖。
// 作者本人、版主和管理员可以。
func CanModifyContribution(id *Identity, authorID uint) bool {
	if id == nil {
		return false
	}
	if id.Role == model.RoleModerator || IsAdmin(id) {
		return true
	}
	return id.UserID == authorID
}
