package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vladikoff/email2feed/internal/domain"
)

var (
	// ErrAccountNotFound 账户未找到
	ErrAccountNotFound = errors.New("account not found")
	// ErrMessageNotFound 邮件未找到
	ErrMessageNotFound = errors.New("message not found")
	// ErrMailboxExists 邮箱名已被占用
	ErrMailboxExists = errors.New("mailbox name already exists")
	// ErrTokenExists 订阅令牌冲突
	ErrTokenExists = errors.New("feed token already exists")
	// ErrOwnerExists 所有者已绑定账户
	ErrOwnerExists = errors.New("owner already has an account")
)

// AccountRepository 定义账户数据存取操作。查询均为等值匹配。
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	UpdateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByMailbox(ctx context.Context, mailboxName string) (*domain.Account, error)
	GetAccountByToken(ctx context.Context, feedToken string) (*domain.Account, error)
	GetAccountByOwner(ctx context.Context, owner string) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// PolicyRepository 定义信任/黑名单条目的存取操作。
type PolicyRepository interface {
	// AddPolicyEntry 幂等，重复添加不报错
	AddPolicyEntry(ctx context.Context, entry *domain.PolicyListEntry) error
	RemovePolicyEntry(ctx context.Context, owner, sender string, kind domain.ListKind) error
	ListPolicyEntries(ctx context.Context, owner string) ([]domain.PolicyListEntry, error)
	DeletePolicyEntriesByOwner(ctx context.Context, owner string) (int, error)
}

// MessageRepository 定义邮件数据存取操作。邮件写入后不可修改。
type MessageRepository interface {
	// SaveMessage 单条原子写入
	SaveMessage(ctx context.Context, message *domain.Message) error
	// ListMessagesByAddress 按 DateReceived 降序、ID 降序返回最多 limit 条
	ListMessagesByAddress(ctx context.Context, toAddress string, limit int) ([]domain.Message, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	DeleteMessagesByAddress(ctx context.Context, toAddress string) (int, error)
	CountMessagesByAddress(ctx context.Context, toAddress string) (int, error)
}

// Store 定义完整的存储接口。
type Store interface {
	AccountRepository
	PolicyRepository
	MessageRepository

	Close() error
	Health() error
}

// FeedCache 缓存渲染后的订阅源文档，键为 feed:{token}:{format}。
type FeedCache interface {
	// Get 未命中时返回 (nil, false, nil)
	Get(ctx context.Context, token string, format domain.FeedFormat) ([]byte, bool, error)
	Set(ctx context.Context, token string, format domain.FeedFormat, document []byte, ttl time.Duration) error
	// Invalidate 删除该令牌所有格式的缓存
	Invalidate(ctx context.Context, token string) error
}

// FeedCacheKey 返回缓存键
func FeedCacheKey(token string, format domain.FeedFormat) string {
	return "feed:" + token + ":" + string(format)
}
