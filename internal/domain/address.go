package domain

import (
	"fmt"
	"strings"
)

// Address 是解析后的邮箱地址。
type Address struct {
	LocalPart string
	Domain    string
}

func (a Address) String() string {
	return a.LocalPart + "@" + a.Domain
}

// ResolveAddress 从 To/From 头的原始值中提取规范地址。
//
// 支持裸地址 "user@domain" 和带显示名的 "Name <user@domain>"：
// 含有尖括号时取第一对尖括号中的内容，否则整体使用。按最后一个 '@' 拆分。
// 不做大小写转换，邮箱名区分大小写。
func ResolveAddress(raw string) (Address, error) {
	value := unwrapAngle(raw)
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformedAddress, raw)
	}
	return Address{
		LocalPart: value[:at],
		Domain:    value[at+1:],
	}, nil
}

// NormalizeSender 返回去掉显示名后的发件人地址。
// 无法解析时返回去除空白后的原值，这样策略列表仍可逐字匹配。
func NormalizeSender(raw string) string {
	addr, err := ResolveAddress(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return addr.String()
}

func unwrapAngle(raw string) string {
	if open := strings.Index(raw, "<"); open >= 0 {
		if end := strings.Index(raw[open+1:], ">"); end >= 0 {
			return strings.TrimSpace(raw[open+1 : open+1+end])
		}
	}
	return strings.TrimSpace(raw)
}
