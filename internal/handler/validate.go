package handler

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"go-auth-service/internal/model"
	"go-auth-service/internal/password"
	"go-auth-service/pkg/apierror"
)

const (
	minPasswordLength = 8
	maxNameLength     = 100
)

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apierror.Validation("email is required", "email")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", apierror.Validation("email is invalid", "email")
	}
	return strings.ToLower(addr.Address), nil
}

func validatePassword(field string, pw string, confirm string) error {
	if len(pw) < minPasswordLength {
		return apierror.Validation("password must be at least 8 characters", field)
	}
	if len(pw) > password.MaxLength {
		return apierror.Validation("password must be at most 72 bytes", field)
	}
	if pw != confirm {
		return apierror.Validation("passwords do not match", "confirm_password")
	}
	return nil
}

func validateSignup(req *model.SignupRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apierror.Validation("name is required", "name")
	}
	if utf8.RuneCountInString(req.Name) > maxNameLength {
		return apierror.Validation("name must be at most 100 characters", "name")
	}

	emailAddr, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	req.Email = emailAddr

	return validatePassword("password", req.Password, req.ConfirmPassword)
}

func validateSignin(req *model.SigninRequest) error {
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	req.Email = emailAddr
	if req.Password == "" {
		return apierror.Validation("password is required", "password")
	}
	return nil
}

func validateEmailRequest(req *model.EmailRequest) error {
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	req.Email = emailAddr
	return nil
}

func validateResetPassword(req *model.ResetPasswordRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return apierror.Validation("token is required", "token")
	}
	return validatePassword("password", req.Password, req.ConfirmPassword)
}

func validateToken(req *model.TokenRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return apierror.Validation("token is required", "token")
	}
	return nil
}

func validateRefresh(req *model.RefreshRequest) error {
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		return apierror.Validation("refresh_token is required", "refresh_token")
	}
	return nil
}
