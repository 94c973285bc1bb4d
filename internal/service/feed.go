package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/feeds"
	"github.com/k3a/html2text"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/monitoring"
	"github.com/vladikoff/email2feed/internal/storage"
)

// 列表摘要的最大字符数
const snippetLength = 200

// Document 渲染结果
type Document struct {
	ContentType string
	Body        []byte
}

// Listing 网页列表格式的订阅源
type Listing struct {
	Title   string         `json:"title"`
	Link    string         `json:"link"`
	Address string         `json:"address"`
	Updated *time.Time     `json:"updated,omitempty"`
	Entries []ListingEntry `json:"entries"`
}

// ListingEntry 列表中的一封邮件
type ListingEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	From      string    `json:"from"`
	Snippet   string    `json:"snippet"`
	Permalink string    `json:"permalink"`
	Received  time.Time `json:"received"`
}

// Entry 单封邮件详情，永久链接的目标
type Entry struct {
	ID        string    `json:"id"`
	Mailbox   string    `json:"mailbox"`
	Title     string    `json:"title"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	BodyType  string    `json:"bodyType"`
	DateSent  string    `json:"dateSent,omitempty"`
	Received  time.Time `json:"received"`
	Permalink string    `json:"permalink"`
}

// FeedService 订阅源物化。只读，不修改任何状态。
type FeedService struct {
	accounts      *AccountService
	messages      storage.MessageRepository
	cache         storage.FeedCache
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	mailDomain    string
	baseURL       string
	permalinkBase string
	maxItems      int
	cacheTTL      time.Duration
}

// NewFeedService 创建订阅源服务。
func NewFeedService(accounts *AccountService, messages storage.MessageRepository, cfg *config.Config, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{
		accounts:      accounts,
		messages:      messages,
		logger:        logger,
		mailDomain:    cfg.Mail.Domain,
		baseURL:       cfg.Feed.BaseURL,
		permalinkBase: cfg.Feed.PermalinkBaseURL,
		maxItems:      cfg.Feed.MaxItems,
		cacheTTL:      cfg.Feed.CacheTTL,
	}
}

// SetFeedCache 设置渲染结果缓存
func (s *FeedService) SetFeedCache(cache storage.FeedCache) {
	s.cache = cache
}

// SetMetrics 设置监控指标
func (s *FeedService) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// RenderFeed 按选择器定位账户并渲染订阅源，未知令牌或邮箱名返回 domain.ErrUnknownFeed。
func (s *FeedService) RenderFeed(ctx context.Context, selector domain.FeedSelector, format domain.FeedFormat) (*Document, error) {
	account, err := s.accounts.Resolve(ctx, selector)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFeed, selector)
	}

	if s.cache != nil {
		body, ok, err := s.cache.Get(ctx, account.FeedToken, format)
		if err != nil {
			s.logger.Warn("feed cache read failed", zap.String("mailbox", account.MailboxName), zap.Error(err))
		} else if ok {
			s.metrics.RecordFeedRender(string(format), true)
			return &Document{ContentType: format.ContentType(), Body: body}, nil
		}
	}

	doc, err := s.Render(ctx, account, format, s.maxItems)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordFeedRender(string(format), false)

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, account.FeedToken, format, doc.Body, s.cacheTTL); err != nil {
			s.logger.Warn("feed cache write failed", zap.String("mailbox", account.MailboxName), zap.Error(err))
		}
	}
	return doc, nil
}

// Render 渲染账户最新的 maxItems 封邮件。相同的存储状态产生相同的字节。
func (s *FeedService) Render(ctx context.Context, account *domain.Account, format domain.FeedFormat, maxItems int) (*Document, error) {
	messages, err := s.messages.ListMessagesByAddress(ctx, account.Address(s.mailDomain), maxItems)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var body []byte
	switch format {
	case domain.FormatRSS2:
		rss, err := s.buildFeed(account, messages).ToRss()
		if err != nil {
			return nil, fmt.Errorf("encode rss: %w", err)
		}
		body = []byte(rss)
	case domain.FormatAtom1:
		feed := s.buildFeed(account, messages)
		if feed.Updated.IsZero() {
			// Atom 的 updated 必填
			feed.Updated = account.CreatedAt.UTC()
		}
		atom, err := feed.ToAtom()
		if err != nil {
			return nil, fmt.Errorf("encode atom: %w", err)
		}
		body = []byte(atom)
	case domain.FormatWebList:
		body, err = json.Marshal(s.buildListing(account, messages))
		if err != nil {
			return nil, fmt.Errorf("encode listing: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}

	return &Document{ContentType: format.ContentType(), Body: body}, nil
}

// GetEntry 返回令牌所属账户的一封邮件，邮件不属于该账户时同样视为未知。
func (s *FeedService) GetEntry(ctx context.Context, token, messageID string) (*Entry, error) {
	account, err := s.accounts.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: token %q", domain.ErrUnknownFeed, token)
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			return nil, fmt.Errorf("%w: message %q", domain.ErrUnknownFeed, messageID)
		}
		return nil, err
	}
	if msg.ToAddress != account.Address(s.mailDomain) {
		return nil, fmt.Errorf("%w: message %q", domain.ErrUnknownFeed, messageID)
	}

	return &Entry{
		ID:        msg.ID,
		Mailbox:   account.MailboxName,
		Title:     msg.Subject,
		From:      msg.FromAddress,
		Body:      msg.Body,
		BodyType:  msg.BodyType,
		DateSent:  msg.DateSent,
		Received:  msg.DateReceived.UTC(),
		Permalink: s.Permalink(account, msg),
	}, nil
}

// Permalink 返回邮件的永久链接
func (s *FeedService) Permalink(account *domain.Account, msg *domain.Message) string {
	return s.permalinkBase + "/" + url.PathEscape(account.FeedToken) + "/" + url.PathEscape(msg.ID)
}

// FeedURL 返回账户指定格式的订阅地址
func (s *FeedService) FeedURL(account *domain.Account, format domain.FeedFormat) string {
	return s.baseURL + "/feed/" + url.PathEscape(account.FeedToken) + format.Extension()
}

func (s *FeedService) title(account *domain.Account) string {
	host := s.baseURL
	if u, err := url.Parse(s.baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return account.MailboxName + " feed at " + host
}

func (s *FeedService) buildFeed(account *domain.Account, messages []domain.Message) *feeds.Feed {
	feed := &feeds.Feed{
		Title:       s.title(account),
		Link:        &feeds.Link{Href: s.FeedURL(account, domain.FormatWebList)},
		Description: "Mail sent to " + account.Address(s.mailDomain),
		Id:          s.FeedURL(account, domain.FormatAtom1),
		Items:       make([]*feeds.Item, 0, len(messages)),
	}
	if len(messages) > 0 {
		feed.Updated = messages[0].DateReceived.UTC()
	}

	for i := range messages {
		msg := &messages[i]
		link := s.Permalink(account, msg)
		received := msg.DateReceived.UTC()
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       msg.Subject,
			Link:        &feeds.Link{Href: link},
			Author:      &feeds.Author{Name: msg.FromAddress, Email: msg.FromAddress},
			Description: msg.Body,
			Id:          link,
			Created:     received,
			Updated:     received,
		})
	}
	return feed
}

func (s *FeedService) buildListing(account *domain.Account, messages []domain.Message) *Listing {
	listing := &Listing{
		Title:   s.title(account),
		Link:    s.FeedURL(account, domain.FormatWebList),
		Address: account.Address(s.mailDomain),
		Entries: make([]ListingEntry, 0, len(messages)),
	}
	if len(messages) > 0 {
		updated := messages[0].DateReceived.UTC()
		listing.Updated = &updated
	}

	for i := range messages {
		msg := &messages[i]
		listing.Entries = append(listing.Entries, ListingEntry{
			ID:        msg.ID,
			Title:     msg.Subject,
			From:      msg.FromAddress,
			Snippet:   snippet(msg.Body, msg.BodyType),
			Permalink: s.Permalink(account, msg),
			Received:  msg.DateReceived.UTC(),
		})
	}
	return listing
}

// snippet 生成纯文本摘要
func snippet(body, bodyType string) string {
	text := body
	if bodyType == BodyTypeHTML {
		text = html2text.HTML2Text(body)
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetLength]) + "…"
}
