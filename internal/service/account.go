package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/monitoring"
	"github.com/vladikoff/email2feed/internal/storage"
)

const (
	tokenConsonants = "bcdfghjklmnprstvwxyz"
	tokenVowels     = "aeiou"
	// 每组音节数，组之间以 '-' 分隔
	tokenGroupSize = 5
	// 令牌冲突时的重试次数
	tokenAttempts = 3
)

// AccountService 账户目录与所有者设置。
type AccountService struct {
	store          storage.Store
	cache          storage.FeedCache
	metrics        *monitoring.Metrics
	logger         *zap.Logger
	validator      *domain.MailboxNameValidator
	mailDomain     string
	tokenSyllables int
	random         io.Reader
	now            func() time.Time
}

// NewAccountService 创建账户服务。
func NewAccountService(store storage.Store, cfg *config.Config, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		store:          store,
		logger:         logger,
		validator:      domain.NewMailboxNameValidator(cfg.Registration.MinLength, cfg.Registration.MaxLength, cfg.Registration.ReservedNames),
		mailDomain:     cfg.Mail.Domain,
		tokenSyllables: cfg.Registration.TokenSyllables,
		random:         rand.Reader,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetFeedCache 设置订阅源缓存，删除账户时失效
func (s *AccountService) SetFeedCache(cache storage.FeedCache) {
	s.cache = cache
}

// SetMetrics 设置监控指标
func (s *AccountService) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// SetClock 替换时钟，用于测试
func (s *AccountService) SetClock(now func() time.Time) {
	s.now = now
}

// MailDomain 返回收件域名
func (s *AccountService) MailDomain() string {
	return s.mailDomain
}

// ========== 目录查询 ==========

// FindByMailbox 按邮箱名精确查找，不存在时返回 (nil, nil)
func (s *AccountService) FindByMailbox(ctx context.Context, name string) (*domain.Account, error) {
	return absentAsNil(s.store.GetAccountByMailbox(ctx, name))
}

// FindByToken 按订阅令牌精确查找，不存在时返回 (nil, nil)
func (s *AccountService) FindByToken(ctx context.Context, token string) (*domain.Account, error) {
	return absentAsNil(s.store.GetAccountByToken(ctx, token))
}

// Resolve 按选择器查找账户。邮箱名寻址是兼容旧链接的别名，走同一个目录查询。
func (s *AccountService) Resolve(ctx context.Context, selector domain.FeedSelector) (*domain.Account, error) {
	if selector.Kind == domain.SelectByLegacyName {
		return s.FindByMailbox(ctx, selector.Value)
	}
	return s.FindByToken(ctx, selector.Value)
}

// GetByOwner 返回所有者的账户
func (s *AccountService) GetByOwner(ctx context.Context, owner string) (*domain.Account, error) {
	if owner == "" {
		return nil, domain.ErrOwnerRequired
	}
	account, err := s.store.GetAccountByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func absentAsNil(account *domain.Account, err error) (*domain.Account, error) {
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// ========== 注册 ==========

// RegisterInput 注册参数。Owner 为空时创建未认领的账户。
type RegisterInput struct {
	MailboxName string
	Owner       string
}

// Register 校验邮箱名并创建账户，默认 OPEN 模式。
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	name, err := s.validator.Validate(input.MailboxName)
	if err != nil {
		return nil, err
	}

	existing, err := s.FindByMailbox(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrMailboxTaken
	}

	var owner *string
	if trimmed := strings.TrimSpace(input.Owner); trimmed != "" {
		if _, err := s.store.GetAccountByOwner(ctx, trimmed); err == nil {
			return nil, domain.ErrOwnerHasAccount
		} else if !errors.Is(err, storage.ErrAccountNotFound) {
			return nil, err
		}
		owner = &trimmed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}

	account := &domain.Account{
		ID:            id.String(),
		MailboxName:   name,
		OwnerIdentity: owner,
		PolicyMode:    domain.PolicyOpen,
		CreatedAt:     s.now(),
	}

	for attempt := 0; attempt < tokenAttempts; attempt++ {
		account.FeedToken, err = s.generateToken()
		if err != nil {
			return nil, err
		}

		err = s.store.CreateAccount(ctx, account)
		switch {
		case err == nil:
			s.metrics.RecordAccountRegistered()
			s.logger.Info("account registered",
				zap.String("mailbox", account.MailboxName),
				zap.String("account_id", account.ID),
			)
			return account, nil
		case errors.Is(err, storage.ErrTokenExists):
			continue
		case errors.Is(err, storage.ErrMailboxExists):
			return nil, domain.ErrMailboxTaken
		case errors.Is(err, storage.ErrOwnerExists):
			return nil, domain.ErrOwnerHasAccount
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("could not allocate a unique feed token after %d attempts", tokenAttempts)
}

// generateToken 生成由辅音+元音音节组成的随机令牌，例如 "bakotimela-runisepoka"。
// 令牌长度只取决于音节数，与邮箱名无关。
func (s *AccountService) generateToken() (string, error) {
	var b strings.Builder
	for i := 0; i < s.tokenSyllables; i++ {
		if i > 0 && i%tokenGroupSize == 0 {
			b.WriteByte('-')
		}
		c, err := s.pick(tokenConsonants)
		if err != nil {
			return "", err
		}
		v, err := s.pick(tokenVowels)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
		b.WriteByte(v)
	}
	return b.String(), nil
}

func (s *AccountService) pick(alphabet string) (byte, error) {
	n, err := rand.Int(s.random, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generate feed token: %w", err)
	}
	return alphabet[n.Int64()], nil
}

// ========== 所有者设置 ==========

// SetPolicyMode 切换准入模式
func (s *AccountService) SetPolicyMode(ctx context.Context, owner string, mode domain.PolicyMode) (*domain.Account, error) {
	if mode != domain.PolicyOpen && mode != domain.PolicyTrustedOnly {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPolicyMode, mode)
	}
	account, err := s.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if account.PolicyMode == mode {
		return account, nil
	}

	account.PolicyMode = mode
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info("policy mode changed",
		zap.String("mailbox", account.MailboxName),
		zap.String("mode", string(mode)),
	)
	return account, nil
}

// AddSender 将发件人加入信任列表或黑名单，重复添加不报错
func (s *AccountService) AddSender(ctx context.Context, owner string, kind domain.ListKind, address string) (*domain.PolicyListEntry, error) {
	if _, err := s.GetByOwner(ctx, owner); err != nil {
		return nil, err
	}
	sender, err := domain.ValidateSenderAddress(address)
	if err != nil {
		return nil, err
	}

	entry := &domain.PolicyListEntry{
		OwnerIdentity: owner,
		SenderAddress: sender,
		Kind:          kind,
		CreatedAt:     s.now(),
	}
	if err := s.store.AddPolicyEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveSender 从列表中移除发件人
func (s *AccountService) RemoveSender(ctx context.Context, owner string, kind domain.ListKind, address string) error {
	if _, err := s.GetByOwner(ctx, owner); err != nil {
		return err
	}
	return s.store.RemovePolicyEntry(ctx, owner, domain.NormalizeSender(address), kind)
}

// SenderLists 所有者的两份列表
type SenderLists struct {
	Trusted []string `json:"trusted"`
	Blocked []string `json:"blocked"`
}

// ListSenders 返回信任列表与黑名单
func (s *AccountService) ListSenders(ctx context.Context, owner string) (*SenderLists, error) {
	if _, err := s.GetByOwner(ctx, owner); err != nil {
		return nil, err
	}
	entries, err := s.store.ListPolicyEntries(ctx, owner)
	if err != nil {
		return nil, err
	}

	lists := &SenderLists{Trusted: []string{}, Blocked: []string{}}
	for _, entry := range entries {
		switch entry.Kind {
		case domain.ListTrusted:
			lists.Trusted = append(lists.Trusted, entry.SenderAddress)
		case domain.ListBlocked:
			lists.Blocked = append(lists.Blocked, entry.SenderAddress)
		}
	}
	return lists, nil
}

// LoadPolicyLists 读取账户所有者的策略列表，未认领账户返回空列表
func (s *AccountService) LoadPolicyLists(ctx context.Context, account *domain.Account) (PolicyLists, error) {
	owner := account.Owner()
	if owner == "" {
		return NewPolicyLists(nil), nil
	}
	entries, err := s.store.ListPolicyEntries(ctx, owner)
	if err != nil {
		return PolicyLists{}, err
	}
	return NewPolicyLists(entries), nil
}

// ========== 删除 ==========

// DeletionReport 级联删除的结果。Partial 为 true 时部分数据未能删除。
type DeletionReport struct {
	AccountID            string `json:"accountId"`
	MailboxName          string `json:"mailboxName"`
	AccountDeleted       bool   `json:"accountDeleted"`
	MessagesDeleted      int    `json:"messagesDeleted"`
	PolicyEntriesDeleted int    `json:"policyEntriesDeleted"`
	Partial              bool   `json:"partial"`
}

// Delete 删除账户、发往该账户的全部邮件和所有者的策略条目。
//
// 各步骤独立执行，某一步失败不会阻止其余步骤；失败的步骤汇总到返回的错误中，
// 同时 report.Partial 置为 true。
func (s *AccountService) Delete(ctx context.Context, owner string) (*DeletionReport, error) {
	account, err := s.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	report := &DeletionReport{
		AccountID:   account.ID,
		MailboxName: account.MailboxName,
	}
	var errs []error

	if err := s.store.DeleteAccount(ctx, account.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete account: %w", err))
	} else {
		report.AccountDeleted = true
	}

	count, err := s.store.DeleteMessagesByAddress(ctx, account.Address(s.mailDomain))
	report.MessagesDeleted = count
	if err != nil {
		errs = append(errs, fmt.Errorf("delete messages: %w", err))
	}

	count, err = s.store.DeletePolicyEntriesByOwner(ctx, owner)
	report.PolicyEntriesDeleted = count
	if err != nil {
		errs = append(errs, fmt.Errorf("delete policy entries: %w", err))
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, account.FeedToken); err != nil {
			s.logger.Warn("failed to invalidate feed cache", zap.String("mailbox", account.MailboxName), zap.Error(err))
		}
	}

	joined := errors.Join(errs...)
	report.Partial = joined != nil
	s.metrics.RecordAccountDeleted(report.Partial)

	if joined != nil {
		s.logger.Warn("account deletion incomplete",
			zap.String("mailbox", account.MailboxName),
			zap.Bool("account_deleted", report.AccountDeleted),
			zap.Int("messages_deleted", report.MessagesDeleted),
			zap.Int("policy_entries_deleted", report.PolicyEntriesDeleted),
			zap.Error(joined),
		)
		return report, joined
	}

	s.logger.Info("account deleted",
		zap.String("mailbox", account.MailboxName),
		zap.Int("messages_deleted", report.MessagesDeleted),
		zap.Int("policy_entries_deleted", report.PolicyEntriesDeleted),
	)
	return report, nil
}
