package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/monitoring"
	"github.com/vladikoff/email2feed/internal/storage"
)

// IngestState 接收链路状态
type IngestState string

const (
	StateReceived      IngestState = "RECEIVED"
	StateResolved      IngestState = "RESOLVED"
	StatePolicyChecked IngestState = "POLICY_CHECKED"
	StateStored        IngestState = "STORED"
	StateDiscarded     IngestState = "DISCARDED"

	// StateFailed 只用于指标：存储故障，邮件未被接收也未被丢弃，由传输层要求重投
	StateFailed IngestState = "FAILED"
)

// RawMessage 传输层交给接收链路的一封邮件
type RawMessage struct {
	From        string // 原始 From 头或信封发件人
	To          string // 原始收件人
	ForwardedTo string // 上游转发目标头，非空时优先用于定位邮箱
	Subject     string
	Date        string // 发件人声明的时间，原样保存
	Parts       []BodyPart
}

// IngestionResult 接收结果。Reason 为丢弃原因，已存储时为 nil。
type IngestionResult struct {
	State     IngestState `json:"state"`
	Reason    error       `json:"-"`
	Mailbox   string      `json:"mailbox,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
}

// ReasonCode 返回丢弃原因的短标识，用于指标标签与响应体
func (r *IngestionResult) ReasonCode() string {
	return reasonCode(r.Reason)
}

// IngestService 接收链路，是邮件写入的唯一入口。
type IngestService struct {
	accounts     *AccountService
	messages     storage.MessageRepository
	cache        storage.FeedCache
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	mailDomain   string
	trustSubject domain.ForwardTrustSubject
	now          func() time.Time
	newID        func() (uuid.UUID, error)
}

// NewIngestService 创建接收服务。
func NewIngestService(accounts *AccountService, messages storage.MessageRepository, cfg *config.Config, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		accounts:     accounts,
		messages:     messages,
		logger:       logger,
		mailDomain:   cfg.Mail.Domain,
		trustSubject: cfg.Mail.ForwardTrustSubject,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewV7,
	}
}

// SetFeedCache 设置订阅源缓存，存储成功后失效
func (s *IngestService) SetFeedCache(cache storage.FeedCache) {
	s.cache = cache
}

// SetMetrics 设置监控指标
func (s *IngestService) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// SetClock 替换接收时钟，用于测试
func (s *IngestService) SetClock(now func() time.Time) {
	s.now = now
}

// Ingest 处理一封邮件：定位邮箱、检查准入、存储。
//
// 地址无效、邮箱未注册、发件人被拒绝时返回 DISCARDED 结果且 error 为 nil；
// 只有存储层故障以包装了 domain.ErrPersistenceFailure 的错误返回。不重试。
func (s *IngestService) Ingest(ctx context.Context, raw *RawMessage) (*IngestionResult, error) {
	start := time.Now()
	result, err := s.ingest(ctx, raw)

	state := string(StateFailed)
	if err == nil && result != nil {
		state = string(result.State)
	}
	s.metrics.RecordIngest(state, reasonCode(errOr(result, err)), time.Since(start))
	return result, err
}

func (s *IngestService) ingest(ctx context.Context, raw *RawMessage) (*IngestionResult, error) {
	result := &IngestionResult{State: StateReceived}
	s.trace(result, zap.String("to", raw.To), zap.String("forwarded_to", raw.ForwardedTo))

	forwarded := strings.TrimSpace(raw.ForwardedTo) != ""
	target := raw.To
	if forwarded {
		target = raw.ForwardedTo
	}

	addr, err := domain.ResolveAddress(target)
	if err != nil {
		s.logger.Info("discarding unroutable message", zap.String("to", target), zap.Error(err))
		return s.discard(result, err), nil
	}
	result.Mailbox = addr.LocalPart
	result.Sender = domain.NormalizeSender(raw.From)
	result.State = StateResolved
	s.trace(result)

	account, err := s.accounts.FindByMailbox(ctx, addr.LocalPart)
	if err != nil {
		return s.fail(result, fmt.Errorf("lookup mailbox %q: %w", addr.LocalPart, err))
	}
	if account == nil {
		s.logger.Info("discarding message for unregistered mailbox",
			zap.String("mailbox", addr.LocalPart),
			zap.String("sender", result.Sender),
		)
		return s.discard(result, domain.ErrUnregisteredMailbox), nil
	}

	lists, err := s.accounts.LoadPolicyLists(ctx, account)
	if err != nil {
		return s.fail(result, fmt.Errorf("load policy lists: %w", err))
	}

	subject := result.Sender
	if forwarded && s.trustSubject == domain.TrustSubjectForwarder {
		subject = domain.NormalizeSender(raw.To)
	}
	decision := Decide(account, lists, subject)
	result.State = StatePolicyChecked
	s.trace(result, zap.String("decision", string(decision)), zap.String("trust_subject", subject))

	if decision == Reject {
		s.logger.Warn("sender rejected by policy",
			zap.String("mailbox", account.MailboxName),
			zap.String("sender", result.Sender),
			zap.String("trust_subject", subject),
			zap.String("policy_mode", string(account.PolicyMode)),
		)
		return s.discard(result, domain.ErrPolicyRejected), nil
	}

	id, err := s.newID()
	if err != nil {
		return s.fail(result, fmt.Errorf("generate message id: %w", err))
	}

	body, bodyType := s.extractBody(raw.Parts, account.MailboxName)
	message := &domain.Message{
		ID:           id.String(),
		AccountID:    account.ID,
		ToAddress:    account.Address(s.mailDomain),
		FromAddress:  result.Sender,
		Subject:      raw.Subject,
		Body:         body,
		BodyType:     bodyType,
		DateSent:     raw.Date,
		DateReceived: s.now().UTC(),
	}

	if err := s.messages.SaveMessage(ctx, message); err != nil {
		return s.fail(result, fmt.Errorf("save message: %w", err))
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, account.FeedToken); err != nil {
			s.logger.Warn("failed to invalidate feed cache", zap.String("mailbox", account.MailboxName), zap.Error(err))
		}
	}

	result.State = StateStored
	result.MessageID = message.ID
	s.logger.Info("message stored",
		zap.String("mailbox", account.MailboxName),
		zap.String("sender", result.Sender),
		zap.String("message_id", message.ID),
	)
	return result, nil
}

// extractBody 选取并解码正文。解码失败时保存原始内容。
func (s *IngestService) extractBody(parts []BodyPart, mailbox string) (string, string) {
	part, ok := SelectBody(parts)
	if !ok {
		return "", BodyTypePlain
	}
	bodyType := mediaType(part.ContentType)

	body, err := DecodeBody(part)
	if err != nil {
		s.logger.Warn("failed to decode message body, storing raw content",
			zap.String("mailbox", mailbox),
			zap.String("transfer_encoding", part.TransferEncoding),
			zap.Error(err),
		)
		return string(part.Content), bodyType
	}
	return body, bodyType
}

func (s *IngestService) discard(result *IngestionResult, reason error) *IngestionResult {
	result.State = StateDiscarded
	result.Reason = reason
	s.trace(result, zap.String("reason", reasonCode(reason)))
	return result
}

func (s *IngestService) fail(result *IngestionResult, err error) (*IngestionResult, error) {
	err = fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	s.logger.Error("ingestion failed",
		zap.String("mailbox", result.Mailbox),
		zap.String("sender", result.Sender),
		zap.String("state", string(result.State)),
		zap.Error(err),
	)
	return nil, err
}

func (s *IngestService) trace(result *IngestionResult, fields ...zap.Field) {
	if ce := s.logger.Check(zap.DebugLevel, "ingest state"); ce != nil {
		ce.Write(append(fields,
			zap.String("state", string(result.State)),
			zap.String("mailbox", result.Mailbox),
			zap.String("sender", result.Sender),
		)...)
	}
}

func errOr(result *IngestionResult, err error) error {
	if err != nil {
		return err
	}
	if result != nil {
		return result.Reason
	}
	return nil
}

func reasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrMalformedAddress):
		return "malformed_address"
	case errors.Is(err, domain.ErrUnregisteredMailbox):
		return "unregistered_mailbox"
	case errors.Is(err, domain.ErrPolicyRejected):
		return "policy_rejected"
	case errors.Is(err, domain.ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "unknown"
	}
}
