package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/service"
)

// FeedHandler 订阅源的公开读取接口，无需认证
type FeedHandler struct {
	feeds *service.FeedService
	log   *zap.Logger
}

// NewFeedHandler 创建订阅源处理器
func NewFeedHandler(feeds *service.FeedService, log *zap.Logger) *FeedHandler {
	return &FeedHandler{feeds: feeds, log: log}
}

// GetFeed 按令牌读取订阅源，后缀 .rss / .atom 选择格式
// @Router /feed/{token} [get]
func (h *FeedHandler) GetFeed(c *gin.Context) {
	token, format := domain.SplitFeedPath(c.Param("token"))
	h.render(c, domain.ByToken(token), format)
}

// LegacyWebList 按邮箱名读取网页列表（兼容旧地址）
// @Router /u/{name} [get]
func (h *FeedHandler) LegacyWebList(c *gin.Context) {
	h.render(c, domain.ByLegacyName(c.Param("name")), domain.FormatWebList)
}

// LegacyRSS 按邮箱名读取 RSS（兼容旧地址）
// @Router /xml/{name} [get]
func (h *FeedHandler) LegacyRSS(c *gin.Context) {
	h.render(c, domain.ByLegacyName(c.Param("name")), domain.FormatRSS2)
}

// LegacyAtom 按邮箱名读取 Atom（兼容旧地址）
// @Router /atom/{name} [get]
func (h *FeedHandler) LegacyAtom(c *gin.Context) {
	h.render(c, domain.ByLegacyName(c.Param("name")), domain.FormatAtom1)
}

func (h *FeedHandler) render(c *gin.Context, selector domain.FeedSelector, format domain.FeedFormat) {
	if selector.Value == "" {
		NotFound(c, GetErrorMessage(domain.ErrUnknownFeed))
		return
	}

	doc, err := h.feeds.RenderFeed(c.Request.Context(), selector, format)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// GetEntry 单封邮件的永久链接
// @Router /m/{token}/{id} [get]
func (h *FeedHandler) GetEntry(c *gin.Context) {
	entry, err := h.feeds.GetEntry(c.Request.Context(), c.Param("token"), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, entry)
}
