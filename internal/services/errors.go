package services

import "errors"

var (
	// ErrNotAuthenticated 登录失败，不区分用户不存在和密码错误
	ErrNotAuthenticated  = errors.New("invalid username or password")
	ErrUserAlreadyExists = errors.New("username already exists")
	ErrUnknownAuthor     = errors.New("unknown message author")
	ErrProfileMismatch   = errors.New("profile does not belong to session")
)
