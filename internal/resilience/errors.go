package resilience

import (
	"errors"
	"net"
	"net/textproto"
	"syscall"
)

// temporary is implemented by go-mail's SendError, which knows whether the
// server's reply was a 4yz.
type temporary interface {
	IsTemp() bool
}

// IsTransient reports whether err, or any error in its chain, is worth
// another attempt: a temporary SMTP reply, a network timeout, or a dropped
// or refused connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		return IsTransientReply(reply.Code)
	}

	var temp temporary
	if errors.As(err, &temp) {
		return temp.IsTemp()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// IsTransientReply reports whether an SMTP reply code is a transient
// negative completion (4yz). Permanent failures (5yz) are not retried.
func IsTransientReply(code int) bool {
	return code >= 400 && code < 500
}
