package service

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// 邮件客户端常用但不在标准注册表中的字符集别名
func init() {
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("x-gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("cp936", simplifiedchinese.GBK)
	charset.RegisterEncoding("gb18030", simplifiedchinese.GB18030)
	charset.RegisterEncoding("big5-hkscs", traditionalchinese.Big5)
	charset.RegisterEncoding("x-sjis", japanese.ShiftJIS)
	charset.RegisterEncoding("ks_c_5601-1987", korean.EUCKR)
}

const (
	BodyTypeHTML  = "text/html"
	BodyTypePlain = "text/plain"
)

// BodyPart 传输层交给接收链路的一个正文部分，Content 保持原始传输编码
type BodyPart struct {
	ContentType      string // 媒体类型，例如 text/html
	Charset          string
	TransferEncoding string // base64、quoted-printable、7bit 等
	Content          []byte
}

// SelectBody 选取第一个 text/html 部分，没有时选取第一个 text/plain 部分
func SelectBody(parts []BodyPart) (BodyPart, bool) {
	var plain *BodyPart
	for i := range parts {
		switch mediaType(parts[i].ContentType) {
		case BodyTypeHTML:
			return parts[i], true
		case BodyTypePlain:
			if plain == nil {
				plain = &parts[i]
			}
		}
	}
	if plain != nil {
		return *plain, true
	}
	return BodyPart{}, false
}

// DecodeBody 解码传输编码并转换为 UTF-8
func DecodeBody(part BodyPart) (string, error) {
	var header message.Header
	params := map[string]string{}
	if part.Charset != "" {
		params["charset"] = part.Charset
	}
	header.SetContentType(mediaType(part.ContentType), params)
	if part.TransferEncoding != "" {
		header.Set("Content-Transfer-Encoding", part.TransferEncoding)
	}

	entity, err := message.New(header, bytes.NewReader(part.Content))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", fmt.Errorf("decode body part: %w", err)
	}

	decoded, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", fmt.Errorf("decode body part: %w", err)
	}
	return string(decoded), nil
}

func mediaType(contentType string) string {
	value := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if value == "" {
		return BodyTypePlain
	}
	return value
}
