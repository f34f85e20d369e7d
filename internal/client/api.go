package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	jwt "github.com/golang-jwt/jwt/v5"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Identity 当前登录的用户。ID 同时用于 /change_state
type Identity struct {
	ID   uint
	Name string
	Info string
}

// API 旧版 HTTP+JSON 接口的客户端
type API struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

func NewAPI(cfg Config) *API {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:5000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		// GET /login 需要携带 JSON 请求体
		SetAllowGetMethodPayload(true)

	return &API{client: cli}
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = strings.TrimSpace(token)
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

type authAnswer struct {
	Answer   bool   `json:"answer"`
	MainID   uint   `json:"main_id"`
	MainName string `json:"main_name"`
	MainInfo string `json:"main_info"`
}

type answer struct {
	Answer bool `json:"answer"`
}

func (a *API) Register(ctx context.Context, name, info, password string) (Identity, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": name, "user_info": info, "password": password}).
		Post("/register")
	if err != nil {
		return Identity{}, transportError("register", err)
	}
	return a.identityFrom(resp)
}

func (a *API) Login(ctx context.Context, name, password string) (Identity, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": name, "password": password}).
		Get("/login")
	if err != nil {
		return Identity{}, transportError("login", err)
	}
	return a.identityFrom(resp)
}

func (a *API) identityFrom(resp *resty.Response) (Identity, error) {
	if err := mapHTTPError(resp); err != nil {
		return Identity{}, err
	}
	var out authAnswer
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Identity{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.Answer {
		return Identity{}, ErrRejected
	}
	if token := bearer(resp.Header().Get("Authorization")); token != "" {
		a.SetToken(token)
	}
	return Identity{ID: out.MainID, Name: out.MainName, Info: out.MainInfo}, nil
}

// Snapshot GET /，把平行数组还原为记录
func (a *API) Snapshot(ctx context.Context) (*Snapshot, error) {
	resp, err := a.authedRequest(ctx).Get("/")
	if err != nil {
		return nil, transportError("snapshot", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	var legacy LegacySnapshot
	if err := json.Unmarshal(resp.Body(), &legacy); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return FromLegacy(legacy)
}

// StructuredSnapshot GET /api/v1/snapshot，消息带有真实 ID 和时间
func (a *API) StructuredSnapshot(ctx context.Context) (*Snapshot, error) {
	resp, err := a.authedRequest(ctx).Get("/api/v1/snapshot")
	if err != nil {
		return nil, transportError("snapshot", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(resp.Body(), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (a *API) SendMessage(ctx context.Context, author, text string) error {
	return a.withRenewal(ctx, func() error {
		resp, err := a.authedRequest(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"text": text, "username": author}).
			Post("/send_message")
		if err != nil {
			return transportError("send message", err)
		}
		return answerFrom(resp)
	})
}

// GoOffline POST /change_state，响应体为空
func (a *API) GoOffline(ctx context.Context, id uint) error {
	return a.withRenewal(ctx, func() error {
		resp, err := a.authedRequest(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]uint{"id": id}).
			Post("/change_state")
		if err != nil {
			return transportError("change state", err)
		}
		return mapHTTPError(resp)
	})
}

// withRenewal 在携带的 token 被拒绝时刷新一次后重试。
// 超出刷新窗口的 token 会被丢弃，重试以匿名身份进行，由服务器按请求体识别用户
func (a *API) withRenewal(ctx context.Context, call func() error) error {
	err := call()
	if !errors.Is(err, ErrUnauthorized) || a.Token() == "" {
		return err
	}
	if rerr := a.RefreshToken(ctx); rerr != nil {
		if !errors.Is(rerr, ErrUnauthorized) {
			return err
		}
		a.SetToken("")
	}
	return call()
}

func answerFrom(resp *resty.Response) error {
	if err := mapHTTPError(resp); err != nil {
		return err
	}
	var out answer
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !out.Answer {
		return ErrRejected
	}
	return nil
}

func (a *API) authedRequest(ctx context.Context) *resty.Request {
	req := a.client.R().SetContext(ctx)
	if token := a.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func bearer(value string) string {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RefreshToken 换取新 token，成功后替换本地保存的 token
func (a *API) RefreshToken(ctx context.Context) error {
	resp, err := a.authedRequest(ctx).Post("/api/v1/token/refresh")
	if err != nil {
		return transportError("refresh token", err)
	}
	if err := answerFrom(resp); err != nil {
		return err
	}
	if token := bearer(resp.Header().Get("Authorization")); token != "" {
		a.SetToken(token)
	}
	return nil
}

// TokenNeedsRenewal 在 token 已过半生命周期时返回 true。
// 只读取声明，不校验签名，签名由服务器在刷新时校验
func (a *API) TokenNeedsRenewal(now time.Time) bool {
	token := a.Token()
	if token == "" {
		return false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}
	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	return now.After(claims.IssuedAt.Add(lifetime / 2))
}
