package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDeployment — запись без ID или имени.
	ErrInvalidDeployment = errors.New("invalid deployment")
)
