package httptransport

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/service"
	mailsmtp "github.com/vladikoff/email2feed/internal/smtp"
)

// InboundHandler 通过 HTTP 投递的原始邮件（RFC 5322）
type InboundHandler struct {
	ingest        *service.IngestService
	forwardHeader string
	log           *zap.Logger
}

// NewInboundHandler 创建入站邮件处理器
func NewInboundHandler(ingest *service.IngestService, forwardHeader string, log *zap.Logger) *InboundHandler {
	return &InboundHandler{
		ingest:        ingest,
		forwardHeader: forwardHeader,
		log:           log,
	}
}

type inboundResponse struct {
	State     service.IngestState `json:"state"`
	Reason    string              `json:"reason,omitempty"`
	Mailbox   string              `json:"mailbox,omitempty"`
	MessageID string              `json:"messageId,omitempty"`
}

// Receive 接收一封原始邮件
//
// 收件人取自 ?to= 参数，缺省时使用邮件的 To 头；?from= 作为信封发件人。
// 被丢弃的邮件同样返回 200，只有存储故障返回 503。
// @Router /v1/inbound [post]
func (h *InboundHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(c, http.StatusRequestEntityTooLarge, "请求体过大")
			return
		}
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		BadRequest(c, MsgRequestBodyEmpty)
		return
	}

	parsed, err := mailsmtp.ParseMessage(bytes.NewReader(body))
	if err != nil {
		h.log.Info("unparseable inbound message", zap.Error(err))
		BadRequest(c, MsgInvalidMessage)
		return
	}

	recipient := strings.TrimSpace(c.Query("to"))
	if recipient == "" {
		recipient = parsed.To
	}
	if recipient == "" {
		BadRequest(c, MsgMissingRecipient)
		return
	}

	raw := parsed.RawMessage(c.Query("from"), recipient, h.forwardHeader)
	result, err := h.ingest.Ingest(c.Request.Context(), raw)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := inboundResponse{
		State:     result.State,
		Mailbox:   result.Mailbox,
		MessageID: result.MessageID,
	}
	if result.Reason != nil {
		resp.Reason = result.ReasonCode()
	}
	Success(c, resp)
}
