package client

import "errors"

var (
	ErrAlreadyBound     = errors.New("device is already bound to a client")
	ErrNotBound         = errors.New("device is not bound to a client")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrSessionActive    = errors.New("devices cannot be added while a session is active")
	ErrQueueClosed      = errors.New("queue is closed")
	ErrQueueFull        = errors.New("queue is full")
)
