package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnreachable 服务器无法连接（网络错误、超时）
	ErrUnreachable = errors.New("server unreachable")
	// ErrRejected 服务器处理了请求但返回 answer=false
	ErrRejected     = errors.New("request rejected by server")
	ErrUnauthorized = errors.New("session missing or expired")
	ErrForbidden    = errors.New("operation not allowed for this session")
	ErrRateLimited  = errors.New("too many requests")
	// ErrMisaligned 旧版快照的平行数组长度不一致
	ErrMisaligned = errors.New("snapshot arrays are misaligned")
)

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnreachable, err)
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
}
