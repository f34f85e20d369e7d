package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/internal/middlewares"
	"github.com/Gopher0727/MiniChat/internal/services"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
)

// LegacyHandler 兼容旧客户端的五个接口。
// 总是返回 200，逻辑失败只通过 answer 字段表达；请求体无法解析时按空字段处理
type LegacyHandler struct {
	auth     *services.AuthService
	chat     *services.ChatService
	presence *services.PresenceService
	log      *logger.Logger
}

func NewLegacyHandler(auth *services.AuthService, chat *services.ChatService, presence *services.PresenceService, log *logger.Logger) *LegacyHandler {
	return &LegacyHandler{
		auth:     auth,
		chat:     chat,
		presence: presence,
		log:      log,
	}
}

type registerBody struct {
	UserName string `json:"username"`
	UserInfo string `json:"user_info"`
	Password string `json:"password"`
}

type registerResponse struct {
	Answer   bool   `json:"answer"`
	MainID   uint   `json:"main_id"`
	MainName string `json:"main_name"`
	MainInfo string `json:"main_info"`
}

type loginBody struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

// 失败时只有 answer 和 main_id 两个字段
type loginResponse struct {
	Answer   bool    `json:"answer"`
	MainID   uint    `json:"main_id"`
	MainName *string `json:"main_name,omitempty"`
	MainInfo *string `json:"main_info,omitempty"`
}

type sendMessageBody struct {
	Text     string `json:"text"`
	UserName string `json:"username"`
	MainID   uint   `json:"main_id"`
}

type changeStateBody struct {
	ID uint `json:"id"`
}

type answerResponse struct {
	Answer bool `json:"answer"`
}

// bindLoose 解析失败时保留零值，和旧服务的 data.get(key, "") 一致
func bindLoose(c *gin.Context, dst any) {
	_ = c.ShouldBindJSON(dst)
}

func setToken(c *gin.Context, token string) {
	if token != "" {
		c.Header("Authorization", "Bearer "+token)
	}
}

// Register POST /register
func (h *LegacyHandler) Register(c *gin.Context) {
	var body registerBody
	bindLoose(c, &body)

	res, err := h.auth.Register(c.Request.Context(), &services.RegisterRequest{
		UserName: body.UserName,
		UserInfo: body.UserInfo,
		Password: body.Password,
	})
	if err != nil {
		if !errors.Is(err, services.ErrUserAlreadyExists) {
			h.log.ErrorContext(c.Request.Context(), "register failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, registerResponse{Answer: false})
		return
	}

	setToken(c, res.Token)
	c.JSON(http.StatusOK, registerResponse{
		Answer:   true,
		MainID:   res.UserID,
		MainName: res.UserName,
		MainInfo: res.UserInfo,
	})
}

// Login GET /login（也接受 POST）
func (h *LegacyHandler) Login(c *gin.Context) {
	var body loginBody
	bindLoose(c, &body)

	res, err := h.auth.Login(c.Request.Context(), &services.LoginRequest{
		UserName: body.UserName,
		Password: body.Password,
	})
	if err != nil {
		if !errors.Is(err, services.ErrNotAuthenticated) {
			h.log.ErrorContext(c.Request.Context(), "login failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, loginResponse{Answer: false, MainID: 0})
		return
	}

	setToken(c, res.Token)
	c.JSON(http.StatusOK, loginResponse{
		Answer:   true,
		MainID:   res.UserID,
		MainName: &res.UserName,
		MainInfo: &res.UserInfo,
	})
}

// Index GET /
func (h *LegacyHandler) Index(c *gin.Context) {
	ctx := c.Request.Context()
	if session := middlewares.SessionFrom(c); session != nil {
		if err := h.presence.Heartbeat(ctx, session.ProfileID); err != nil {
			h.log.WarnContext(ctx, "heartbeat failed", zap.Error(err))
		}
	}

	snap, err := h.chat.Snapshot(ctx)
	if err != nil {
		// 保持响应结构，返回空快照
		h.log.ErrorContext(ctx, "snapshot failed", zap.Error(err))
		snap = &services.Snapshot{}
	}
	c.JSON(http.StatusOK, snap.Legacy())
}

// SendMessage POST /send_message
func (h *LegacyHandler) SendMessage(c *gin.Context) {
	var body sendMessageBody
	bindLoose(c, &body)

	_, err := h.chat.SendMessage(c.Request.Context(), &services.SendMessageRequest{
		Text:     body.Text,
		UserName: body.UserName,
		AuthorID: body.MainID,
		Session:  middlewares.SessionFrom(c),
	})
	if err != nil {
		if !errors.Is(err, services.ErrUnknownAuthor) {
			h.log.ErrorContext(c.Request.Context(), "send message failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, answerResponse{Answer: false})
		return
	}
	c.JSON(http.StatusOK, answerResponse{Answer: true})
}

// ChangeState POST /change_state，响应体为空
func (h *LegacyHandler) ChangeState(c *gin.Context) {
	var body changeStateBody
	bindLoose(c, &body)

	err := h.presence.GoOffline(c.Request.Context(), body.ID, middlewares.SessionFrom(c))
	if errors.Is(err, services.ErrProfileMismatch) {
		c.Status(http.StatusForbidden)
		return
	}
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "change state failed", zap.Error(err))
	}
	c.Status(http.StatusOK)
}
