package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/pkg/database"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrKeyTaken draft_key 已被其他 owner 的 sale 占用
	ErrKeyTaken = errors.New("draft key published by another owner")
)

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrKeyTaken):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case database.IsUniqueViolation(err):
		return ErrDuplicate
	default:
		return err
	}
}
