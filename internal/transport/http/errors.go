package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "github.com/vladikoff/email2feed/internal/auth/jwt"
	"github.com/vladikoff/email2feed/internal/domain"
)

// errorMapping 业务错误对应的 HTTP 状态码与中文消息
type errorMapping struct {
	err    error
	status int
	msg    string
}

// 按顺序匹配，使用 errors.Is 以支持包装后的错误
var errorMessages = []errorMapping{
	// 订阅源
	{domain.ErrUnknownFeed, http.StatusNotFound, "订阅源不存在"},

	// 账户
	{domain.ErrAccountNotFound, http.StatusNotFound, "账户不存在"},
	{domain.ErrMailboxTaken, http.StatusConflict, "邮箱名已被占用"},
	{domain.ErrOwnerHasAccount, http.StatusConflict, "您已拥有一个账户"},
	{domain.ErrMailboxNameInvalid, http.StatusBadRequest, "邮箱名须以字母或数字开头，只能包含字母、数字、点、下划线和连字符"},
	{domain.ErrMailboxNameTooShort, http.StatusBadRequest, "邮箱名太短"},
	{domain.ErrMailboxNameTooLong, http.StatusBadRequest, "邮箱名太长"},
	{domain.ErrMailboxNameReserved, http.StatusBadRequest, "该邮箱名为保留名称"},
	{domain.ErrOwnerRequired, http.StatusUnauthorized, MsgAuthRequired},

	// 设置
	{domain.ErrInvalidPolicyMode, http.StatusBadRequest, "准入模式无效，可选 OPEN 或 TRUSTED_ONLY"},
	{domain.ErrInvalidListKind, http.StatusBadRequest, "列表类型无效，可选 trusted 或 blocked"},
	{domain.ErrMalformedAddress, http.StatusBadRequest, "邮件地址格式无效"},

	// 接收
	{domain.ErrPersistenceFailure, http.StatusServiceUnavailable, "邮件保存失败，请稍后重试"},

	// 令牌
	{jwtpkg.ErrExpiredToken, http.StatusUnauthorized, MsgTokenExpired},
	{jwtpkg.ErrWrongTokenKind, http.StatusUnauthorized, MsgTokenInvalid},
	{jwtpkg.ErrInvalidToken, http.StatusUnauthorized, MsgTokenInvalid},
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"
	MsgAuthRequired     = "需要登录认证"
	MsgTokenExpired     = "登录已过期，请重新登录"
	MsgTokenInvalid     = "无效的访问令牌"
	MsgMissingRecipient = "缺少收件人"
	MsgInvalidMessage   = "无法解析邮件内容"
	MsgPartialDeletion  = "部分数据删除失败"
	MsgInternalError    = "服务器内部错误，请稍后重试"
)

// lookupError 返回错误对应的状态码与消息，未知错误返回 false
func lookupError(err error) (int, string, bool) {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.status, m.msg, true
		}
	}
	return 0, "", false
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if _, msg, ok := lookupError(err); ok {
		return msg
	}
	return err.Error()
}

// respondError 写出业务错误，未映射的错误记录日志并返回 500
func respondError(c *gin.Context, log *zap.Logger, err error) {
	if status, msg, ok := lookupError(err); ok {
		Error(c, status, msg)
		return
	}

	log.Error("request failed",
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	InternalError(c, MsgInternalError)
}
