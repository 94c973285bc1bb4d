package service

import "github.com/vladikoff/email2feed/internal/domain"

// Decision 准入判定结果
type Decision string

const (
	Accept Decision = "ACCEPT"
	Reject Decision = "REJECT"
)

// PolicyLists 某个所有者的信任列表与黑名单
type PolicyLists struct {
	Trusted map[string]struct{}
	Blocked map[string]struct{}
}

// NewPolicyLists 按条目类型构建查询集合
func NewPolicyLists(entries []domain.PolicyListEntry) PolicyLists {
	lists := PolicyLists{
		Trusted: make(map[string]struct{}),
		Blocked: make(map[string]struct{}),
	}
	for _, entry := range entries {
		switch entry.Kind {
		case domain.ListTrusted:
			lists.Trusted[entry.SenderAddress] = struct{}{}
		case domain.ListBlocked:
			lists.Blocked[entry.SenderAddress] = struct{}{}
		}
	}
	return lists
}

// IsTrusted 精确匹配，区分大小写
func (l PolicyLists) IsTrusted(sender string) bool {
	_, ok := l.Trusted[sender]
	return ok
}

// IsBlocked 精确匹配，区分大小写
func (l PolicyLists) IsBlocked(sender string) bool {
	_, ok := l.Blocked[sender]
	return ok
}

// Decide 根据账户的策略模式判定发件人是否准入，不修改任何状态。
//
// OPEN: 不在黑名单中即接收。TRUSTED_ONLY: 只接收信任列表中的发件人。
// 未知模式按 TRUSTED_ONLY 处理。
func Decide(account *domain.Account, lists PolicyLists, sender string) Decision {
	switch account.PolicyMode {
	case domain.PolicyOpen:
		if lists.IsBlocked(sender) {
			return Reject
		}
		return Accept
	default:
		if lists.IsTrusted(sender) {
			return Accept
		}
		return Reject
	}
}
