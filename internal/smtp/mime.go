package smtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/vladikoff/email2feed/internal/service"
)

// 嵌套 multipart 的最大深度
const maxMultipartDepth = 8

// ParsedMessage 解析后的邮件。正文部分保持原始传输编码，由接收链路解码。
type ParsedMessage struct {
	Header  mail.Header
	From    string
	To      string
	Subject string
	Date    string
	Parts   []service.BodyPart
}

// ForwardedTo 返回转发头的值，没有时返回空字符串
func (m *ParsedMessage) ForwardedTo(header string) string {
	if header == "" {
		return ""
	}
	return strings.TrimSpace(m.Header.Get(header))
}

// RawMessage 生成交给接收链路的邮件，To 为信封收件人
func (m *ParsedMessage) RawMessage(envelopeFrom, recipient, forwardHeader string) *service.RawMessage {
	from := m.From
	if strings.TrimSpace(from) == "" {
		from = envelopeFrom
	}
	return &service.RawMessage{
		From:        from,
		To:          recipient,
		ForwardedTo: m.ForwardedTo(forwardHeader),
		Subject:     m.Subject,
		Date:        m.Date,
		Parts:       m.Parts,
	}
}

// ParseMessage 解析 RFC 5322 邮件，收集所有 text/html 与 text/plain 部分。
// 附件与非文本部分被忽略。
func ParseMessage(r io.Reader) (*ParsedMessage, error) {
	br := bufio.NewReader(r)
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	header := mail.Header{Header: message.Header{Header: h}}
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}

	parsed := &ParsedMessage{
		Header:  header,
		From:    header.Get("From"),
		To:      header.Get("To"),
		Subject: subject,
		Date:    header.Get("Date"),
	}

	if err := collectParts(header.Header, br, parsed, 0); err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	return parsed, nil
}

func collectParts(h message.Header, body io.Reader, parsed *ParsedMessage, depth int) error {
	mediaType, params, err := h.ContentType()
	if err != nil {
		mediaType, params = service.BodyTypePlain, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxMultipartDepth {
			return nil
		}
		boundary := params["boundary"]
		if boundary == "" {
			return errors.New("multipart message without boundary")
		}

		mr := textproto.NewMultipartReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := collectParts(message.Header{Header: part.Header}, part, parsed, depth+1); err != nil {
				return err
			}
		}
	}

	if mediaType != service.BodyTypeHTML && mediaType != service.BodyTypePlain {
		return nil
	}
	if disposition, _, err := h.ContentDisposition(); err == nil && disposition == "attachment" {
		return nil
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	parsed.Parts = append(parsed.Parts, service.BodyPart{
		ContentType:      mediaType,
		Charset:          params["charset"],
		TransferEncoding: strings.TrimSpace(h.Get("Content-Transfer-Encoding")),
		Content:          content,
	})
	return nil
}
