package mq

import "errors"

// Ошибки пакета mq.
var (
	// ErrNoChannel — AMQP канал недоступен (соединение закрыто или переподключается).
	ErrNoChannel = errors.New("no channel available")

	// ErrClosed — соединение закрыто через Close.
	ErrClosed = errors.New("connection closed")
)
