package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladikoff/email2feed/internal/cache"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/storage"
	"github.com/vladikoff/email2feed/internal/storage/memory"
)

var tokenPattern = regexp.MustCompile(`^([bcdfghjklmnprstvwxyz][aeiou]){5}-([bcdfghjklmnprstvwxyz][aeiou]){5}$`)

func TestAccountService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("注册成功", func(t *testing.T) {
		f := newFixture(nil)

		account, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "  swift-fox ", Owner: "alice"})
		require.NoError(t, err)

		assert.Equal(t, "swift-fox", account.MailboxName)
		assert.Equal(t, "alice", account.Owner())
		assert.Equal(t, domain.PolicyOpen, account.PolicyMode)
		assert.NotEmpty(t, account.ID)
		assert.Regexp(t, tokenPattern, account.FeedToken)
		assert.Equal(t, "swift-fox@"+testDomain, account.Address(f.accounts.MailDomain()))

		found, err := f.accounts.FindByToken(ctx, account.FeedToken)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("令牌长度与邮箱名无关", func(t *testing.T) {
		f := newFixture(nil)

		short, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "abcdef"})
		require.NoError(t, err)
		long, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "a-rather-long-mailbox"})
		require.NoError(t, err)

		assert.Len(t, short.FeedToken, 21)
		assert.Len(t, long.FeedToken, 21)
		assert.NotEqual(t, short.FeedToken, long.FeedToken)
	})

	t.Run("未认领账户", func(t *testing.T) {
		f := newFixture(nil)

		account, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox"})
		require.NoError(t, err)
		assert.Nil(t, account.OwnerIdentity)
		assert.Empty(t, account.Owner())
	})

	t.Run("邮箱名已被占用", func(t *testing.T) {
		f := newFixture(nil)

		_, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)

		_, err = f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "bob"})
		assert.ErrorIs(t, err, domain.ErrMailboxTaken)
	})

	t.Run("所有者已有账户", func(t *testing.T) {
		f := newFixture(nil)

		_, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)

		_, err = f.accounts.Register(ctx, RegisterInput{MailboxName: "quiet-owl", Owner: "alice"})
		assert.ErrorIs(t, err, domain.ErrOwnerHasAccount)
	})

	t.Run("邮箱名校验失败", func(t *testing.T) {
		f := newFixture(nil)

		tests := []struct {
			name    string
			mailbox string
			wantErr error
		}{
			{"过短", "abcde", domain.ErrMailboxNameTooShort},
			{"过长", "abcdefghijklmnopqrstuvwxy", domain.ErrMailboxNameTooLong},
			{"保留名称", "postmaster", domain.ErrMailboxNameReserved},
			{"非法字符", "swift fox", domain.ErrMailboxNameInvalid},
			{"空名称", "   ", domain.ErrMailboxNameInvalid},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.accounts.Register(ctx, RegisterInput{MailboxName: tt.mailbox})
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}

func TestAccountService_Resolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	account, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
	require.NoError(t, err)

	t.Run("按令牌定位", func(t *testing.T) {
		found, err := f.accounts.Resolve(ctx, domain.ByToken(account.FeedToken))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("按旧邮箱名定位", func(t *testing.T) {
		found, err := f.accounts.Resolve(ctx, domain.ByLegacyName("swift-fox"))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("未知选择器返回nil", func(t *testing.T) {
		found, err := f.accounts.Resolve(ctx, domain.ByToken("nope"))
		require.NoError(t, err)
		assert.Nil(t, found)

		found, err = f.accounts.Resolve(ctx, domain.ByLegacyName("Swift-Fox"))
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("查询所有者", func(t *testing.T) {
		_, err := f.accounts.GetByOwner(ctx, "")
		assert.ErrorIs(t, err, domain.ErrOwnerRequired)

		_, err = f.accounts.GetByOwner(ctx, "bob")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestAccountService_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("切换准入模式", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)

		account, err := f.accounts.SetPolicyMode(ctx, "alice", domain.PolicyTrustedOnly)
		require.NoError(t, err)
		assert.Equal(t, domain.PolicyTrustedOnly, account.PolicyMode)

		stored, err := f.accounts.FindByMailbox(ctx, "swift-fox")
		require.NoError(t, err)
		assert.Equal(t, domain.PolicyTrustedOnly, stored.PolicyMode)

		_, err = f.accounts.SetPolicyMode(ctx, "alice", domain.PolicyMode("SOMETIMES"))
		assert.ErrorIs(t, err, domain.ErrInvalidPolicyMode)
	})

	t.Run("维护发件人列表", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)

		entry, err := f.accounts.AddSender(ctx, "alice", domain.ListTrusted, "Friend <friend@ok.com>")
		require.NoError(t, err)
		assert.Equal(t, "friend@ok.com", entry.SenderAddress)

		_, err = f.accounts.AddSender(ctx, "alice", domain.ListTrusted, "friend@ok.com")
		require.NoError(t, err, "重复添加不报错")
		_, err = f.accounts.AddSender(ctx, "alice", domain.ListBlocked, "spam@bad.com")
		require.NoError(t, err)

		lists, err := f.accounts.ListSenders(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"friend@ok.com"}, lists.Trusted)
		assert.Equal(t, []string{"spam@bad.com"}, lists.Blocked)

		require.NoError(t, f.accounts.RemoveSender(ctx, "alice", domain.ListTrusted, "<friend@ok.com>"))
		lists, err = f.accounts.ListSenders(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, lists.Trusted)
		assert.Equal(t, []string{"spam@bad.com"}, lists.Blocked)
	})

	t.Run("拒绝无效发件人地址", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)

		_, err = f.accounts.AddSender(ctx, "alice", domain.ListBlocked, "not-an-address")
		assert.ErrorIs(t, err, domain.ErrMalformedAddress)
	})

	t.Run("无账户的所有者不能修改设置", func(t *testing.T) {
		f := newFixture(nil)

		_, err := f.accounts.AddSender(ctx, "bob", domain.ListBlocked, "spam@bad.com")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
		_, err = f.accounts.ListSenders(ctx, "bob")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestAccountService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("级联删除账户邮件与列表", func(t *testing.T) {
		f := newFixture(nil)
		local := cache.NewLocalCache(100, time.Minute)
		defer local.Close()
		feedCache := cache.NewFeedCache(local)
		f.accounts.SetFeedCache(feedCache)

		account, err := f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)
		_, err = f.accounts.AddSender(ctx, "alice", domain.ListBlocked, "spam@bad.com")
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			result, err := f.ingest.Ingest(ctx, plainMessage("x@y.com", "swift-fox@"+testDomain, "hi", "body"))
			require.NoError(t, err)
			require.Equal(t, StateStored, result.State)
		}
		require.NoError(t, feedCache.Set(ctx, account.FeedToken, domain.FormatRSS2, []byte("<rss/>"), time.Minute))

		report, err := f.accounts.Delete(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, report.AccountDeleted)
		assert.Equal(t, 3, report.MessagesDeleted)
		assert.Equal(t, 1, report.PolicyEntriesDeleted)
		assert.False(t, report.Partial)

		found, err := f.accounts.FindByMailbox(ctx, "swift-fox")
		require.NoError(t, err)
		assert.Nil(t, found)

		count, err := f.store.CountMessagesByAddress(ctx, account.Address(testDomain))
		require.NoError(t, err)
		assert.Zero(t, count)

		_, hit, err := feedCache.Get(ctx, account.FeedToken, domain.FormatRSS2)
		require.NoError(t, err)
		assert.False(t, hit)

		// 邮箱名可重新注册
		_, err = f.accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)
	})

	t.Run("部分失败时继续其余步骤", func(t *testing.T) {
		cfg := testConfig()
		store := &faultyStore{Store: memory.NewStore(), failMessages: true}
		store.On("DeleteMessagesByAddress", "swift-fox@"+testDomain).Return(0, errors.New("disk on fire"))
		accounts := NewAccountService(store, cfg, nil)

		_, err := accounts.Register(ctx, RegisterInput{MailboxName: "swift-fox", Owner: "alice"})
		require.NoError(t, err)
		_, err = accounts.AddSender(ctx, "alice", domain.ListTrusted, "friend@ok.com")
		require.NoError(t, err)

		report, err := accounts.Delete(ctx, "alice")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")
		require.NotNil(t, report)
		assert.True(t, report.Partial)
		assert.True(t, report.AccountDeleted)
		assert.Equal(t, 1, report.PolicyEntriesDeleted)
		store.AssertExpectations(t)

		_, err = store.GetAccountByOwner(ctx, "alice")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("没有账户时返回错误", func(t *testing.T) {
		f := newFixture(nil)

		_, err := f.accounts.Delete(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}
