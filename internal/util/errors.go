package util

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOwnerID   = errors.New("invalid owner id")
	ErrInvalidYear      = errors.New("invalid year")
	ErrUserNotFound     = errors.New("user not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrKeywordConflict  = errors.New("keyword update conflict")
	ErrInvalidToken     = errors.New("invalid token")
)

// StoreError 包装存储层错误，调用方可通过 errors.Is(err, ErrStoreUnavailable) 判断是否可重试
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
