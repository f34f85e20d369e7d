package client

import (
	"errors"
	"strings"
)

var (
	ErrEmptyName          = errors.New("username is required")
	ErrEmptyPassword      = errors.New("password is required")
	ErrEmptyInfo          = errors.New("user info is required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNameHasWhitespaces = errors.New("username must not contain spaces")
)

type RegisterForm struct {
	Name     string
	Info     string
	Password string
	Confirm  string
}

func (f RegisterForm) Validate() error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	if strings.TrimSpace(f.Info) == "" {
		return ErrEmptyInfo
	}
	if f.Password == "" {
		return ErrEmptyPassword
	}
	if f.Password != f.Confirm {
		return ErrPasswordMismatch
	}
	return nil
}

type LoginForm struct {
	Name     string
	Password string
}

func (f LoginForm) Validate() error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	if f.Password == "" {
		return ErrEmptyPassword
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, " \t\n") {
		return ErrNameHasWhitespaces
	}
	return nil
}
