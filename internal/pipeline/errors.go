package pipeline

import (
	"errors"
	"strings"
)

var (
	ErrAlreadyStarted = errors.New("pipeline: supervisor already started")
	ErrNotStarted     = errors.New("pipeline: supervisor not started")
	ErrNilGraph       = errors.New("pipeline: graph is nil")
)

// ErrorCategory classifies bus errors for telemetry.
type ErrorCategory int

const (
	ErrCategoryNetwork ErrorCategory = iota
	ErrCategoryCodec
	ErrCategoryAuth
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication", "credentials",
	}
	codecKeywords = []string{
		"codec", "decode", "format", "negotiation", "caps", "jpeg", "not negotiated",
		"no decoder", "missing plugin", "multipart",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns", "resolve",
		"socket", "tcp", "could not connect", "failed to connect", "not found", "404",
		"500", "502", "503", "souphttpsrc", "read error",
	}
)

// ClassifyError categorizes a bus error from its message and debug text.
// Auth is checked first as the most specific, then codec, then network.
func ClassifyError(msg, debug string) ErrorCategory {
	combined := strings.ToLower(msg + " " + debug)
	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
