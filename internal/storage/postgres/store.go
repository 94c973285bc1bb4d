package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/storage"
)

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL 与 MySQL
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// PoolOptions 连接池参数
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolOptions 默认连接池参数
var DefaultPoolOptions = PoolOptions{
	MaxOpenConns:    25,
	MaxIdleConns:    5,
	ConnMaxLifetime: 5 * time.Minute,
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, pool PoolOptions) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), pool)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, pool PoolOptions) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), pool)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolOptions) (*Store, error) {
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool = DefaultPoolOptions
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Account{},
		&domain.PolicyListEntry{},
		&domain.Message{},
	)
}

// ========== Account Repository ==========

// CreateAccount 创建账户
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkAccountConflicts(tx, account); err != nil {
			return err
		}
		if err := tx.Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return storage.ErrMailboxExists
			}
			return err
		}
		return nil
	})
}

// UpdateAccount 更新账户
func (s *Store) UpdateAccount(ctx context.Context, account *domain.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Account{}).Where("id = ?", account.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.ErrAccountNotFound
		}
		if err := checkAccountConflicts(tx, account); err != nil {
			return err
		}
		err := tx.Model(&domain.Account{}).Where("id = ?", account.ID).Updates(map[string]interface{}{
			"mailbox_name":   account.MailboxName,
			"owner_identity": account.OwnerIdentity,
			"feed_token":     account.FeedToken,
			"policy_mode":    account.PolicyMode,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrMailboxExists
		}
		return err
	})
}

// checkAccountConflicts 检查其他账户是否已占用邮箱名、令牌或所有者
func checkAccountConflicts(tx *gorm.DB, account *domain.Account) error {
	var count int64
	if err := tx.Model(&domain.Account{}).
		Where("mailbox_name = ? AND id <> ?", account.MailboxName, account.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrMailboxExists
	}

	if err := tx.Model(&domain.Account{}).
		Where("feed_token = ? AND id <> ?", account.FeedToken, account.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrTokenExists
	}

	if owner := account.Owner(); owner != "" {
		if err := tx.Model(&domain.Account{}).
			Where("owner_identity = ? AND id <> ?", owner, account.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrOwnerExists
		}
	}
	return nil
}

// GetAccountByMailbox 根据邮箱名获取账户
func (s *Store) GetAccountByMailbox(ctx context.Context, mailboxName string) (*domain.Account, error) {
	return s.getAccount(ctx, "mailbox_name = ?", mailboxName)
}

// GetAccountByToken 根据订阅令牌获取账户
func (s *Store) GetAccountByToken(ctx context.Context, feedToken string) (*domain.Account, error) {
	return s.getAccount(ctx, "feed_token = ?", feedToken)
}

// GetAccountByOwner 根据所有者获取账户
func (s *Store) GetAccountByOwner(ctx context.Context, owner string) (*domain.Account, error) {
	return s.getAccount(ctx, "owner_identity = ?", owner)
}

func (s *Store) getAccount(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var account domain.Account
	err := s.db.WithContext(ctx).Where(query, arg).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// DeleteAccount 删除账户记录
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Account{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// ========== Policy Repository ==========

// AddPolicyEntry 添加策略条目，重复时忽略
func (s *Store) AddPolicyEntry(ctx context.Context, entry *domain.PolicyListEntry) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
}

// RemovePolicyEntry 移除策略条目
func (s *Store) RemovePolicyEntry(ctx context.Context, owner, sender string, kind domain.ListKind) error {
	return s.db.WithContext(ctx).
		Where("owner_identity = ? AND sender_address = ? AND kind = ?", owner, sender, kind).
		Delete(&domain.PolicyListEntry{}).Error
}

// ListPolicyEntries 返回所有者的全部条目
func (s *Store) ListPolicyEntries(ctx context.Context, owner string) ([]domain.PolicyListEntry, error) {
	var entries []domain.PolicyListEntry
	err := s.db.WithContext(ctx).
		Where("owner_identity = ?", owner).
		Order("kind ASC, sender_address ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeletePolicyEntriesByOwner 删除所有者的全部条目
func (s *Store) DeletePolicyEntriesByOwner(ctx context.Context, owner string) (int, error) {
	result := s.db.WithContext(ctx).Where("owner_identity = ?", owner).Delete(&domain.PolicyListEntry{})
	return int(result.RowsAffected), result.Error
}

// ========== Message Repository ==========

// SaveMessage 单条 INSERT 保存邮件
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	return s.db.WithContext(ctx).Create(message).Error
}

// ListMessagesByAddress 按订阅源顺序查询邮件，命中 idx_messages_feed
func (s *Store) ListMessagesByAddress(ctx context.Context, toAddress string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	query := s.db.WithContext(ctx).
		Where("to_address = ?", toAddress).
		Order("date_received DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].DateReceived = messages[i].DateReceived.UTC()
	}
	return messages, nil
}

// GetMessage 获取单封邮件
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}
	message.DateReceived = message.DateReceived.UTC()
	return &message, nil
}

// DeleteMessagesByAddress 删除发往该地址的全部邮件
func (s *Store) DeleteMessagesByAddress(ctx context.Context, toAddress string) (int, error) {
	result := s.db.WithContext(ctx).Where("to_address = ?", toAddress).Delete(&domain.Message{})
	return int(result.RowsAffected), result.Error
}

// CountMessagesByAddress 统计发往该地址的邮件数量
func (s *Store) CountMessagesByAddress(ctx context.Context, toAddress string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Message{}).Where("to_address = ?", toAddress).Count(&count).Error
	return int(count), err
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
