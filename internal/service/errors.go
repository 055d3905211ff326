package service

import "errors"

var (
	ErrInvalidURL     = errors.New("invalid URL")
	ErrLinkNotFound   = errors.New("link not found")
	ErrCodeExists     = errors.New("short code or alias already exists")
	ErrInvalidAlias   = errors.New("invalid custom alias format")
	ErrCodeGeneration = errors.New("failed to generate a unique short code")
	ErrNotOwner       = errors.New("link does not belong to the caller")
	ErrInvalidRequest = errors.New("invalid link configuration")
)
