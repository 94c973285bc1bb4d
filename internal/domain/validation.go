package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// 邮箱名长度默认限制（开区间）
const (
	DefaultMinMailboxLength = 5
	DefaultMaxMailboxLength = 25

	// RFC 5321 本地部分最大长度
	MaxLocalPartLength = 64
	MaxSenderLength    = 254
)

var (
	// 邮箱名：字母或数字开头，后续允许 . _ -
	mailboxNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	// 发件人地址的宽松检查，只拒绝明显无效的输入
	senderAddressRegex = regexp.MustCompile(`^[^\s@<>]+@[^\s@<>]+$`)
)

// MailboxNameValidator 邮箱名验证器
type MailboxNameValidator struct {
	minLength int
	maxLength int
	reserved  map[string]struct{}
}

// NewMailboxNameValidator 创建邮箱名验证器。长度必须严格大于 minLength 且严格小于 maxLength。
func NewMailboxNameValidator(minLength, maxLength int, reserved []string) *MailboxNameValidator {
	if minLength <= 0 {
		minLength = DefaultMinMailboxLength
	}
	if maxLength <= minLength {
		maxLength = DefaultMaxMailboxLength
	}
	set := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return &MailboxNameValidator{
		minLength: minLength,
		maxLength: maxLength,
		reserved:  set,
	}
}

// Validate 验证邮箱名，返回去除空白后的名称
func (v *MailboxNameValidator) Validate(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" || !mailboxNameRegex.MatchString(name) {
		return "", ErrMailboxNameInvalid
	}
	if len(name) > MaxLocalPartLength {
		return "", ErrMailboxNameTooLong
	}
	if _, ok := v.reserved[name]; ok {
		return "", ErrMailboxNameReserved
	}
	if len(name) <= v.minLength {
		return "", fmt.Errorf("%w (must be longer than %d chars)", ErrMailboxNameTooShort, v.minLength)
	}
	if len(name) >= v.maxLength {
		return "", fmt.Errorf("%w (must be shorter than %d chars)", ErrMailboxNameTooLong, v.maxLength)
	}

	return name, nil
}

// IsReserved 判断名称是否保留
func (v *MailboxNameValidator) IsReserved(name string) bool {
	_, ok := v.reserved[strings.TrimSpace(name)]
	return ok
}

// ValidateSenderAddress 规范化并检查策略列表中的发件人地址
func ValidateSenderAddress(raw string) (string, error) {
	sender := NormalizeSender(raw)
	if len(sender) > MaxSenderLength || !senderAddressRegex.MatchString(sender) {
		return "", fmt.Errorf("%w: %q", ErrMalformedAddress, raw)
	}
	return sender, nil
}
