package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "github.com/vladikoff/email2feed/internal/auth/jwt"
	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/middleware"
	"github.com/vladikoff/email2feed/internal/service"
)

// AccountHandler 所有者 API：注册、设置与删除
type AccountHandler struct {
	accounts   *service.AccountService
	feeds      *service.FeedService
	jwtManager *jwtpkg.Manager
	log        *zap.Logger
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(accounts *service.AccountService, feeds *service.FeedService, jwtManager *jwtpkg.Manager, log *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:   accounts,
		feeds:      feeds,
		jwtManager: jwtManager,
		log:        log,
	}
}

type registerRequest struct {
	MailboxName string `json:"mailboxName" binding:"required"`
}

type policyRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type senderRequest struct {
	Kind    string `json:"kind" form:"kind" binding:"required"`
	Address string `json:"address" form:"address" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type feedLinks struct {
	Web  string `json:"web"`
	RSS  string `json:"rss"`
	Atom string `json:"atom"`
}

type accountResponse struct {
	ID          string            `json:"id"`
	MailboxName string            `json:"mailboxName"`
	Address     string            `json:"address"`
	FeedToken   string            `json:"feedToken"`
	PolicyMode  domain.PolicyMode `json:"policyMode"`
	Feeds       feedLinks         `json:"feeds"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (h *AccountHandler) toAccountResponse(account *domain.Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		MailboxName: account.MailboxName,
		Address:     account.Address(h.accounts.MailDomain()),
		FeedToken:   account.FeedToken,
		PolicyMode:  account.PolicyMode,
		Feeds: feedLinks{
			Web:  h.feeds.FeedURL(account, domain.FormatWebList),
			RSS:  h.feeds.FeedURL(account, domain.FormatRSS2),
			Atom: h.feeds.FeedURL(account, domain.FormatAtom1),
		},
		CreatedAt: account.CreatedAt.UTC(),
	}
}

// Register 为当前所有者注册邮箱名
// @Router /v1/account [post]
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), service.RegisterInput{
		MailboxName: req.MailboxName,
		Owner:       middleware.Owner(c),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Created(c, h.toAccountResponse(account))
}

// Get 返回当前所有者的账户
// @Router /v1/account [get]
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.accounts.GetByOwner(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, h.toAccountResponse(account))
}

// SetPolicy 切换准入模式
// @Router /v1/account/policy [put]
func (h *AccountHandler) SetPolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mode, err := domain.ParsePolicyMode(req.Mode)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	account, err := h.accounts.SetPolicyMode(c.Request.Context(), middleware.Owner(c), mode)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "准入模式已更新", h.toAccountResponse(account))
}

// ListSenders 返回信任列表与黑名单
// @Router /v1/account/senders [get]
func (h *AccountHandler) ListSenders(c *gin.Context) {
	lists, err := h.accounts.ListSenders(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, lists)
}

// AddSender 添加发件人到列表
// @Router /v1/account/senders [post]
func (h *AccountHandler) AddSender(c *gin.Context) {
	var req senderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	kind, err := domain.ParseListKind(req.Kind)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	entry, err := h.accounts.AddSender(c.Request.Context(), middleware.Owner(c), kind, req.Address)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, entry)
}

// RemoveSender 从列表移除发件人，参数取自查询字符串
// @Router /v1/account/senders [delete]
func (h *AccountHandler) RemoveSender(c *gin.Context) {
	var req senderRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	kind, err := domain.ParseListKind(req.Kind)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.accounts.RemoveSender(c.Request.Context(), middleware.Owner(c), kind, req.Address); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "已移除", nil)
}

// Delete 删除账户及其全部邮件与策略条目
// @Router /v1/account [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	report, err := h.accounts.Delete(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		if report != nil {
			h.log.Error("account deletion incomplete", zap.String("mailbox", report.MailboxName), zap.Error(err))
			c.JSON(CodeInternalError, Response{
				Code: CodeInternalError,
				Msg:  MsgPartialDeletion,
				Data: report,
			})
			return
		}
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "账户已删除", report)
}

// Refresh 用刷新令牌换取新的访问令牌
// @Router /v1/auth/refresh [post]
func (h *AccountHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Success(c, gin.H{
		"accessToken": accessToken,
		"tokenType":   "Bearer",
	})
}
