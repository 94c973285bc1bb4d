package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/monitoring"
	"github.com/vladikoff/email2feed/internal/service"
)

// 单封邮件交给接收链路处理的最长时间
const ingestTimeout = 30 * time.Second

// Ingester 接收链路
type Ingester interface {
	Ingest(ctx context.Context, raw *service.RawMessage) (*service.IngestionResult, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收发往 mail.domain 的邮件，不提供中继。收件人域名不匹配时在 RCPT 阶段返回 550；
// 邮箱是否注册不在 RCPT 阶段暴露，未注册邮箱的邮件由接收链路静默丢弃。
type Backend struct {
	ingest        Ingester
	limiter       *ConnectionLimiter
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	mailDomain    string
	forwardHeader string
}

// NewBackend 创建 SMTP Backend。limiter 为 nil 时不限制连接。
func NewBackend(ingest Ingester, cfg *config.Config, limiter *ConnectionLimiter, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		ingest:        ingest,
		limiter:       limiter,
		logger:        logger,
		mailDomain:    cfg.Mail.Domain,
		forwardHeader: cfg.Mail.ForwardHeader,
	}
}

// SetMetrics 设置监控指标
func (b *Backend) SetMetrics(metrics *monitoring.Metrics) {
	b.metrics = metrics
}

// NewServer 按配置创建 SMTP 服务器
func NewServer(backend *Backend, cfg *config.SMTPConfig) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.BindAddr
	server.Domain = cfg.Hostname
	server.ReadTimeout = 10 * time.Second
	server.WriteTimeout = 10 * time.Second
	server.MaxMessageBytes = cfg.MaxMessageBytes
	server.MaxRecipients = cfg.MaxRecipients
	return server
}

// NewSession 创建新的 SMTP 会话，超出连接限制时拒绝。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}

	if b.limiter != nil {
		if ok, reason := b.limiter.Acquire(); !ok {
			b.metrics.RecordSMTPRejected(reason)
			b.logger.Warn("smtp connection rejected", zap.String("remote", remote), zap.String("reason", reason))
			return nil, &gosmtp.SMTPError{
				Code:         421,
				EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
				Message:      "too many connections, try again later",
			}
		}
	}

	return &session{backend: b, remote: remote}, nil
}

type session struct {
	backend    *Backend
	remote     string
	from       string
	recipients []string
	released   bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt 处理 RCPT 命令，只接受本域名的收件人。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr, err := domain.ResolveAddress(to)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if !strings.EqualFold(addr.Domain, s.backend.mailDomain) {
		s.backend.logger.Info("relay denied",
			zap.String("remote", s.remote),
			zap.String("recipient", addr.String()),
		)
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied",
		}
	}

	s.recipients = append(s.recipients, addr.String())
	return nil
}

// Data 解析邮件并为每个信封收件人执行一次接收。
// 丢弃的邮件仍返回 250，只有存储故障返回 451。
// 超过 MaxMessageBytes 时 go-smtp 的读取器返回 ErrDataTooLarge（552），邮件不进入接收链路。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.backend.logger.Info("message data rejected", zap.String("remote", s.remote), zap.Error(err))
		return err
	}

	parsed, err := ParseMessage(bytes.NewReader(raw))
	if err != nil {
		s.backend.logger.Info("rejecting unparseable message", zap.String("remote", s.remote), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	var failed error
	for _, rcpt := range s.recipients {
		result, err := s.backend.ingest.Ingest(ctx, parsed.RawMessage(s.from, rcpt, s.backend.forwardHeader))
		if err != nil {
			failed = errors.Join(failed, err)
			continue
		}
		if result.State == service.StateDiscarded {
			s.backend.logger.Debug("message discarded",
				zap.String("recipient", rcpt),
				zap.String("reason", result.ReasonCode()),
			)
		}
	}

	if failed != nil {
		s.backend.logger.Error("smtp delivery failed", zap.String("remote", s.remote), zap.Error(failed))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary storage failure, try again later",
		}
	}
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 会话结束，释放连接许可。
func (s *session) Logout() error {
	if s.backend.limiter != nil && !s.released {
		s.released = true
		s.backend.limiter.Release()
	}
	return nil
}
