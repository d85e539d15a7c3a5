package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"syscall"
	"testing"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("server busy"))
	if !IsTransient(err) {
		t.Error("TransientError should be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("busy"))
	wrapped := fmt.Errorf("download: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_FTPReplyCodes(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{421, true},  // service not available
		{426, true},  // connection closed, transfer aborted
		{450, true},  // file busy
		{452, true},  // insufficient storage
		{530, false}, // not logged in
		{550, false}, // file unavailable
	}
	for _, tc := range cases {
		err := &textproto.Error{Code: tc.code, Msg: "reply"}
		if got := IsTransient(err); got != tc.want {
			t.Errorf("code %d: IsTransient = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{Err: "timeout", IsTimeout: true}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_ConnectionErrors(t *testing.T) {
	for _, err := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsTransient(err) {
			t.Errorf("%v should be transient", err)
		}
	}
}

func TestIsTransient_StringHeuristics(t *testing.T) {
	if !IsTransient(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset message should be transient")
	}
	if IsTransient(errors.New("parse ftp url: invalid scheme")) {
		t.Error("parse error should not be transient")
	}
}

func TestIsTransient_PermanentError(t *testing.T) {
	if IsTransient(errors.New("file not found")) {
		t.Error("generic error should not be transient")
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner)
	if !errors.Is(te, inner) {
		t.Error("TransientError should unwrap to the inner error")
	}
	if te.Error() != "inner" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
