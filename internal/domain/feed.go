package domain

import (
	"fmt"
	"strings"
)

// FeedFormat 订阅源的输出格式。
type FeedFormat string

const (
	FormatWebList FeedFormat = "WEB_LIST"
	FormatRSS2    FeedFormat = "RSS2"
	FormatAtom1   FeedFormat = "ATOM1"
)

// AllFeedFormats 全部输出格式
var AllFeedFormats = []FeedFormat{FormatWebList, FormatRSS2, FormatAtom1}

// ContentType 返回格式对应的 HTTP Content-Type。
func (f FeedFormat) ContentType() string {
	switch f {
	case FormatRSS2:
		return "application/rss+xml; charset=utf-8"
	case FormatAtom1:
		return "application/atom+xml; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Extension 返回 URL 中使用的后缀。
func (f FeedFormat) Extension() string {
	switch f {
	case FormatRSS2:
		return ".rss"
	case FormatAtom1:
		return ".atom"
	default:
		return ""
	}
}

// SplitFeedPath 将 "token.rss" 这样的路径段拆成令牌与格式。
func SplitFeedPath(segment string) (string, FeedFormat) {
	switch {
	case strings.HasSuffix(segment, ".rss"):
		return strings.TrimSuffix(segment, ".rss"), FormatRSS2
	case strings.HasSuffix(segment, ".atom"):
		return strings.TrimSuffix(segment, ".atom"), FormatAtom1
	default:
		return segment, FormatWebList
	}
}

// SelectorKind 区分订阅源的寻址方式。
type SelectorKind int

const (
	// SelectByToken 以订阅令牌寻址（标准方式）
	SelectByToken SelectorKind = iota
	// SelectByLegacyName 以邮箱名寻址（已废弃的兼容别名）
	SelectByLegacyName
)

// FeedSelector 定位一个订阅源：ByToken(token) | ByLegacyName(name)。
type FeedSelector struct {
	Kind  SelectorKind
	Value string
}

// ByToken 以订阅令牌构造选择器。
func ByToken(token string) FeedSelector {
	return FeedSelector{Kind: SelectByToken, Value: token}
}

// ByLegacyName 以邮箱名构造选择器。
func ByLegacyName(name string) FeedSelector {
	return FeedSelector{Kind: SelectByLegacyName, Value: name}
}

func (s FeedSelector) String() string {
	if s.Kind == SelectByLegacyName {
		return "name:" + s.Value
	}
	return "token:" + s.Value
}

// ForwardTrustSubject 决定检测到转发头时用哪个地址做信任检查。
//
// forwarder 模式检查完整的原 To 地址，不沿用旧版只比较转发目标 local-part 的行为。
type ForwardTrustSubject string

const (
	// TrustSubjectSender 始终检查 From 中的原始发件人
	TrustSubjectSender ForwardTrustSubject = "sender"
	// TrustSubjectForwarder 转发时检查转发方（原 To 地址）
	TrustSubjectForwarder ForwardTrustSubject = "forwarder"
)

// ParseForwardTrustSubject 解析配置值，空字符串视为 sender。
func ParseForwardTrustSubject(value string) (ForwardTrustSubject, error) {
	switch ForwardTrustSubject(strings.ToLower(strings.TrimSpace(value))) {
	case "", TrustSubjectSender:
		return TrustSubjectSender, nil
	case TrustSubjectForwarder:
		return TrustSubjectForwarder, nil
	default:
		return "", fmt.Errorf("invalid forward trust subject %q (supported: sender, forwarder)", value)
	}
}
