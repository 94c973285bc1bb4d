package domain

import (
	"fmt"
	"strings"
	"time"
)

// PolicyMode 表示账户的发件人准入模式。
type PolicyMode string

const (
	// PolicyOpen 接收所有发件人，黑名单中的除外
	PolicyOpen PolicyMode = "OPEN"
	// PolicyTrustedOnly 只接收信任列表中的发件人
	PolicyTrustedOnly PolicyMode = "TRUSTED_ONLY"
)

// ParsePolicyMode 解析策略模式（不区分大小写）。
func ParsePolicyMode(value string) (PolicyMode, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(PolicyOpen):
		return PolicyOpen, nil
	case string(PolicyTrustedOnly), "TRUSTED":
		return PolicyTrustedOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicyMode, value)
	}
}

// Account 表示一个收件别名及其订阅源。
//
// 邮件与账户之间没有外键约束，读取时按 ToAddress 匹配；
// 修改 MailboxName 会使历史邮件脱离该账户。
type Account struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxName   string     `json:"mailboxName" gorm:"type:varchar(64);uniqueIndex;not null"`
	OwnerIdentity *string    `json:"ownerIdentity,omitempty" gorm:"type:varchar(255);uniqueIndex"` // 未认领时为 nil
	FeedToken     string     `json:"feedToken" gorm:"type:varchar(64);uniqueIndex;not null"`
	PolicyMode    PolicyMode `json:"policyMode" gorm:"type:varchar(16);not null;default:OPEN"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Address 返回账户的完整收件地址。
func (a *Account) Address(mailDomain string) string {
	return a.MailboxName + "@" + mailDomain
}

// Owner 返回所有者标识，未认领时返回空字符串。
func (a *Account) Owner() string {
	if a.OwnerIdentity == nil {
		return ""
	}
	return *a.OwnerIdentity
}

// ListKind 区分信任列表与黑名单。
type ListKind string

const (
	ListTrusted ListKind = "trusted"
	ListBlocked ListKind = "blocked"
)

// ParseListKind 解析列表类型。
func ParseListKind(value string) (ListKind, error) {
	switch ListKind(strings.ToLower(strings.TrimSpace(value))) {
	case ListTrusted:
		return ListTrusted, nil
	case ListBlocked:
		return ListBlocked, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidListKind, value)
	}
}

// PolicyListEntry 是所有者维护的信任/黑名单条目。
// (OwnerIdentity, SenderAddress, Kind) 唯一。
type PolicyListEntry struct {
	OwnerIdentity string    `json:"ownerIdentity" gorm:"primaryKey;type:varchar(255)"`
	SenderAddress string    `json:"senderAddress" gorm:"primaryKey;type:varchar(320)"`
	Kind          ListKind  `json:"kind" gorm:"primaryKey;type:varchar(16)"`
	CreatedAt     time.Time `json:"createdAt"`
}
