package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/storage/memory"
)

const testDomain = "email2feed.local"

func testConfig() *config.Config {
	return &config.Config{
		Mail: config.MailConfig{
			Domain:              testDomain,
			ForwardHeader:       "X-Forwarded-To",
			ForwardTrustSubject: domain.TrustSubjectSender,
		},
		Feed: config.FeedConfig{
			BaseURL:          "http://feeds.test",
			PermalinkBaseURL: "http://feeds.test/m",
			MaxItems:         10,
		},
		Registration: config.RegistrationConfig{
			MinLength:      5,
			MaxLength:      25,
			ReservedNames:  []string{"postmaster", "admin"},
			TokenSyllables: 10,
		},
	}
}

// fixedClock 每次调用前进一秒，保证 DateReceived 严格递增
type fixedClock struct {
	now time.Time
}

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store    *memory.Store
	cfg      *config.Config
	clock    *fixedClock
	accounts *AccountService
	ingest   *IngestService
	feeds    *FeedService
}

func newFixture(cfg *config.Config) *fixture {
	if cfg == nil {
		cfg = testConfig()
	}
	store := memory.NewStore()
	clock := newClock()

	accounts := NewAccountService(store, cfg, nil)
	accounts.SetClock(clock.Now)
	ingest := NewIngestService(accounts, store, cfg, nil)
	ingest.SetClock(clock.Now)

	return &fixture{
		store:    store,
		cfg:      cfg,
		clock:    clock,
		accounts: accounts,
		ingest:   ingest,
		feeds:    NewFeedService(accounts, store, cfg, nil),
	}
}

func plainMessage(from, to, subject, body string) *RawMessage {
	return &RawMessage{
		From:    from,
		To:      to,
		Subject: subject,
		Date:    "Fri, 1 Mar 2024 12:00:00 +0000",
		Parts:   []BodyPart{{ContentType: BodyTypePlain, Charset: "utf-8", Content: []byte(body)}},
	}
}

// faultyStore 在内存存储之上模拟部分操作失败
type faultyStore struct {
	*memory.Store
	mock.Mock
	failMessages bool
	failPolicies bool
	failLookup   bool
	failSave     bool
}

func (f *faultyStore) DeleteMessagesByAddress(ctx context.Context, toAddress string) (int, error) {
	if f.failMessages {
		args := f.Called(toAddress)
		return args.Int(0), args.Error(1)
	}
	return f.Store.DeleteMessagesByAddress(ctx, toAddress)
}

func (f *faultyStore) DeletePolicyEntriesByOwner(ctx context.Context, owner string) (int, error) {
	if f.failPolicies {
		args := f.Called(owner)
		return args.Int(0), args.Error(1)
	}
	return f.Store.DeletePolicyEntriesByOwner(ctx, owner)
}

func (f *faultyStore) GetAccountByMailbox(ctx context.Context, name string) (*domain.Account, error) {
	if f.failLookup {
		args := f.Called(name)
		return nil, args.Error(1)
	}
	return f.Store.GetAccountByMailbox(ctx, name)
}

func (f *faultyStore) SaveMessage(ctx context.Context, message *domain.Message) error {
	if f.failSave {
		args := f.Called(message.ToAddress)
		return args.Error(0)
	}
	return f.Store.SaveMessage(ctx, message)
}
