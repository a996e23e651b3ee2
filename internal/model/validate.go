package model

import (
	"fmt"
	"net/mail"
	"regexp"
)

const (
	// MaxEmailLen 邮箱最大长度。
	MaxEmailLen = 254
	// MaxUsernameLen 用户名最大长度。
	MaxUsernameLen = 150
	// MaxNameLen 姓名字段最大长度。
	MaxNameLen = 150

	// ReservedUsername 被 /users/me 路由占用，禁止注册。
	ReservedUsername = "me"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// ValidateEmail 返回邮箱字段的校验错误消息，合法时为空。
func ValidateEmail(email string) []string {
	if email == "" {
		return []string{"required"}
	}
	var errs []string
	if len(email) > MaxEmailLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxEmailLen))
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errs = append(errs, "invalid email address")
	}
	return errs
}

// ValidateUsername 返回用户名字段的校验错误消息，合法时为空。
func ValidateUsername(username string) []string {
	if username == "" {
		return []string{"required"}
	}
	var errs []string
	if len(username) > MaxUsernameLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxUsernameLen))
	}
	if !usernamePattern.MatchString(username) {
		errs = append(errs, "may contain only letters, digits and @/./+/-/_ characters")
	}
	if username == ReservedUsername {
		errs = append(errs, "this username is reserved")
	}
	return errs
}
