package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestAppErrorError(t *testing.T) {
	t.Run("without wrapped error", func(t *testing.T) {
		err := New(ErrCodeValidation, "bad input")
		want := "[E1001] bad input"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("with wrapped error", func(t *testing.T) {
		inner := stderrors.New("boom")
		err := Wrap(ErrCodeInternal, "something broke", inner)
		want := "[E1000] something broke: boom"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
		if !stderrors.Is(err, inner) {
			t.Error("errors.Is should find the wrapped error")
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeRunNotFound, http.StatusNotFound},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeHostAuth, http.StatusUnauthorized},
		{ErrCodeTenantMismatch, http.StatusForbidden},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeHostRateLimit, http.StatusTooManyRequests},
		{ErrCodeAITimeout, http.StatusGatewayTimeout},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeQueueEnqueue, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			got := New(tt.code, "x").HTTPStatus()
			if got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsPermanentHostError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"401", New(ErrCodeHostAuth, "unauthorized").WithStatusCode(401), true},
		{"403", New(ErrCodeHostAuth, "forbidden").WithStatusCode(403), true},
		{"404", New(ErrCodeHostNotFound, "gone").WithStatusCode(404), true},
		{"500", New(ErrCodeHostTransport, "server error").WithStatusCode(500), false},
		{"no status", New(ErrCodeHostTransport, "plain"), false},
		{"plain error", stderrors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanentHostError(tt.err); got != tt.want {
				t.Errorf("IsPermanentHostError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransientMessage(t *testing.T) {
	transient := []string{
		"host request failed with 429 Too Many Requests",
		"upstream returned 503",
		"request timeout after 10s",
		"network is unreachable",
		"read: connection reset by peer",
		"context deadline exceeded",
	}
	for _, msg := range transient {
		if !IsTransientMessage(msg) {
			t.Errorf("IsTransientMessage(%q) = false, want true", msg)
		}
	}

	permanent := []string{
		"host request failed with 401 Unauthorized",
		"review run not found",
		"tenant mismatch for review run",
		"invalid payload",
	}
	for _, msg := range permanent {
		if IsTransientMessage(msg) {
			t.Errorf("IsTransientMessage(%q) = true, want false", msg)
		}
	}
}

func TestAsAppError(t *testing.T) {
	appErr := ErrNotFound("review run")
	got, ok := AsAppError(appErr)
	if !ok || got.Code != ErrCodeNotFound {
		t.Errorf("AsAppError() = (%v, %v), want AppError with E1002", got, ok)
	}

	if _, ok := AsAppError(stderrors.New("nope")); ok {
		t.Error("AsAppError() on plain error should return false")
	}
}
