package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vladikoff/email2feed/internal/domain"
)

func entries(kind domain.ListKind, senders ...string) []domain.PolicyListEntry {
	out := make([]domain.PolicyListEntry, 0, len(senders))
	for _, s := range senders {
		out = append(out, domain.PolicyListEntry{OwnerIdentity: "owner", SenderAddress: s, Kind: kind})
	}
	return out
}

func TestDecide(t *testing.T) {
	open := &domain.Account{MailboxName: "swift-fox", PolicyMode: domain.PolicyOpen}
	trustedOnly := &domain.Account{MailboxName: "swift-fox", PolicyMode: domain.PolicyTrustedOnly}

	t.Run("开放模式拒绝黑名单发件人", func(t *testing.T) {
		lists := NewPolicyLists(entries(domain.ListBlocked, "spam@bad.com"))

		assert.Equal(t, Reject, Decide(open, lists, "spam@bad.com"))
		assert.Equal(t, Accept, Decide(open, lists, "friend@ok.com"))
		assert.Equal(t, Accept, Decide(open, lists, "other@bad.com"))
	})

	t.Run("开放模式忽略信任列表", func(t *testing.T) {
		lists := NewPolicyLists(entries(domain.ListTrusted, "friend@ok.com"))
		assert.Equal(t, Accept, Decide(open, lists, "stranger@x.com"))
	})

	t.Run("仅信任模式只接收信任列表", func(t *testing.T) {
		lists := NewPolicyLists(entries(domain.ListTrusted, "friend@ok.com"))

		assert.Equal(t, Accept, Decide(trustedOnly, lists, "friend@ok.com"))
		assert.Equal(t, Reject, Decide(trustedOnly, lists, "stranger@x.com"))
	})

	t.Run("仅信任模式下移出列表后拒绝", func(t *testing.T) {
		before := NewPolicyLists(entries(domain.ListTrusted, "friend@ok.com", "pal@ok.com"))
		assert.Equal(t, Accept, Decide(trustedOnly, before, "friend@ok.com"))

		after := NewPolicyLists(entries(domain.ListTrusted, "pal@ok.com"))
		assert.Equal(t, Reject, Decide(trustedOnly, after, "friend@ok.com"))
	})

	t.Run("仅信任模式空列表全部拒绝", func(t *testing.T) {
		assert.Equal(t, Reject, Decide(trustedOnly, NewPolicyLists(nil), "friend@ok.com"))
	})

	t.Run("匹配区分大小写且不支持通配", func(t *testing.T) {
		lists := NewPolicyLists(entries(domain.ListBlocked, "spam@bad.com", "*@evil.com"))

		assert.Equal(t, Accept, Decide(open, lists, "Spam@bad.com"))
		assert.Equal(t, Accept, Decide(open, lists, "x@evil.com"))
	})

	t.Run("判定不修改列表", func(t *testing.T) {
		lists := NewPolicyLists(entries(domain.ListBlocked, "spam@bad.com"))
		Decide(open, lists, "spam@bad.com")
		Decide(trustedOnly, lists, "spam@bad.com")
		assert.Len(t, lists.Blocked, 1)
		assert.Empty(t, lists.Trusted)
	})
}
