package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/storage"
)

// Store 使用内存保存账户、策略列表与邮件，主要用于开发验证和测试。
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account // accountID -> account
	byName   map[string]string          // mailboxName -> accountID
	byToken  map[string]string          // feedToken -> accountID
	byOwner  map[string]string          // ownerIdentity -> accountID

	policies map[string]map[policyKey]*domain.PolicyListEntry // owner -> entries

	messages  map[string]*domain.Message   // messageID -> message
	byAddress map[string][]*domain.Message // toAddress -> 已按订阅源顺序排列
}

type policyKey struct {
	sender string
	kind   domain.ListKind
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]*domain.Account),
		byName:    make(map[string]string),
		byToken:   make(map[string]string),
		byOwner:   make(map[string]string),
		policies:  make(map[string]map[policyKey]*domain.PolicyListEntry),
		messages:  make(map[string]*domain.Message),
		byAddress: make(map[string][]*domain.Message),
	}
}

// ========== Account Repository ==========

// CreateAccount 创建账户，邮箱名、令牌、所有者均需唯一。
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[account.MailboxName]; exists {
		return storage.ErrMailboxExists
	}
	if _, exists := s.byToken[account.FeedToken]; exists {
		return storage.ErrTokenExists
	}
	if owner := account.Owner(); owner != "" {
		if _, exists := s.byOwner[owner]; exists {
			return storage.ErrOwnerExists
		}
	}

	stored := cloneAccount(account)
	s.accounts[stored.ID] = stored
	s.indexAccountLocked(stored)
	return nil
}

// UpdateAccount 更新账户。
func (s *Store) UpdateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[account.ID]
	if !ok {
		return storage.ErrAccountNotFound
	}
	if id, exists := s.byName[account.MailboxName]; exists && id != account.ID {
		return storage.ErrMailboxExists
	}
	if id, exists := s.byToken[account.FeedToken]; exists && id != account.ID {
		return storage.ErrTokenExists
	}
	if owner := account.Owner(); owner != "" {
		if id, exists := s.byOwner[owner]; exists && id != account.ID {
			return storage.ErrOwnerExists
		}
	}

	s.unindexAccountLocked(existing)
	stored := cloneAccount(account)
	s.accounts[stored.ID] = stored
	s.indexAccountLocked(stored)
	return nil
}

// GetAccountByMailbox 根据邮箱名获取账户。
func (s *Store) GetAccountByMailbox(ctx context.Context, mailboxName string) (*domain.Account, error) {
	return s.getAccountBy(ctx, s.byName, mailboxName)
}

// GetAccountByToken 根据订阅令牌获取账户。
func (s *Store) GetAccountByToken(ctx context.Context, feedToken string) (*domain.Account, error) {
	return s.getAccountBy(ctx, s.byToken, feedToken)
}

// GetAccountByOwner 根据所有者获取账户。
func (s *Store) GetAccountByOwner(ctx context.Context, owner string) (*domain.Account, error) {
	return s.getAccountBy(ctx, s.byOwner, owner)
}

func (s *Store) getAccountBy(ctx context.Context, index map[string]string, key string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

// DeleteAccount 删除账户记录，不级联删除邮件。
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	s.unindexAccountLocked(account)
	delete(s.accounts, id)
	return nil
}

func (s *Store) indexAccountLocked(account *domain.Account) {
	s.byName[account.MailboxName] = account.ID
	s.byToken[account.FeedToken] = account.ID
	if owner := account.Owner(); owner != "" {
		s.byOwner[owner] = account.ID
	}
}

func (s *Store) unindexAccountLocked(account *domain.Account) {
	delete(s.byName, account.MailboxName)
	delete(s.byToken, account.FeedToken)
	if owner := account.Owner(); owner != "" {
		delete(s.byOwner, owner)
	}
}

// ========== Policy Repository ==========

// AddPolicyEntry 添加策略条目，已存在时保持原创建时间。
func (s *Store) AddPolicyEntry(ctx context.Context, entry *domain.PolicyListEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.policies[entry.OwnerIdentity]
	if !ok {
		entries = make(map[policyKey]*domain.PolicyListEntry)
		s.policies[entry.OwnerIdentity] = entries
	}
	key := policyKey{sender: entry.SenderAddress, kind: entry.Kind}
	if _, exists := entries[key]; !exists {
		copied := *entry
		entries[key] = &copied
	}
	return nil
}

// RemovePolicyEntry 移除策略条目，不存在时不报错。
func (s *Store) RemovePolicyEntry(ctx context.Context, owner, sender string, kind domain.ListKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entries, ok := s.policies[owner]; ok {
		delete(entries, policyKey{sender: sender, kind: kind})
	}
	return nil
}

// ListPolicyEntries 返回所有者的全部条目，按类型与地址排序。
func (s *Store) ListPolicyEntries(ctx context.Context, owner string) ([]domain.PolicyListEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.policies[owner]
	result := make([]domain.PolicyListEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].SenderAddress < result[j].SenderAddress
	})
	return result, nil
}

// DeletePolicyEntriesByOwner 删除所有者的全部条目，返回删除数量。
func (s *Store) DeletePolicyEntriesByOwner(ctx context.Context, owner string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.policies[owner])
	delete(s.policies, owner)
	return count, nil
}

// ========== Message Repository ==========

// SaveMessage 保存邮件。
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *message
	s.messages[stored.ID] = &stored

	list := s.byAddress[stored.ToAddress]
	idx := sort.Search(len(list), func(i int) bool {
		return stored.NewerThan(list[i])
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = &stored
	s.byAddress[stored.ToAddress] = list
	return nil
}

// ListMessagesByAddress 按订阅源顺序返回最多 limit 条邮件，limit <= 0 表示不限。
func (s *Store) ListMessagesByAddress(ctx context.Context, toAddress string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byAddress[toAddress]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	result := make([]domain.Message, 0, len(list))
	for _, msg := range list {
		result = append(result, *msg)
	}
	return result, nil
}

// GetMessage 获取单封邮件。
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// DeleteMessagesByAddress 删除发往该地址的全部邮件，返回删除数量。
func (s *Store) DeleteMessagesByAddress(ctx context.Context, toAddress string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byAddress[toAddress]
	for _, msg := range list {
		delete(s.messages, msg.ID)
	}
	delete(s.byAddress, toAddress)
	return len(list), nil
}

// CountMessagesByAddress 返回发往该地址的邮件数量。
func (s *Store) CountMessagesByAddress(ctx context.Context, toAddress string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byAddress[toAddress]), nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终健康。
func (s *Store) Health() error {
	return nil
}

func cloneAccount(account *domain.Account) *domain.Account {
	copied := *account
	if account.OwnerIdentity != nil {
		owner := *account.OwnerIdentity
		copied.OwnerIdentity = &owner
	}
	return &copied
}
