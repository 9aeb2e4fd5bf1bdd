package exchangeadapter

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want ErrorKind
	}{
		{"nil error classifies empty", "", ""},
		{"auth code", "<APIError> code=-2015, msg=Invalid API-key", KindAuth},
		{"rate limit code", "<APIError> code=-1003, msg=Too many requests", KindRateLimit},
		{"order not found code", "<APIError> code=-2011, msg=Unknown order", KindOrderNotFound},
		{"order not found phrase", "Unknown order sent.", KindOrderNotFound},
		{"insufficient balance code", "<APIError> code=-2019, msg=Margin is insufficient", KindInsufficientBal},
		{"insufficient balance phrase", "Margin is insufficient", KindInsufficientBal},
		{"bad request code", "<APIError> code=-1013, msg=Filter failure", KindBadRequest},
		{"exchange down timeout", "context deadline exceeded: timeout", KindExchangeDown},
		{"exchange down 503", "server returned 503", KindExchangeDown},
		{"unrecognized message", "something totally unexpected happened", KindUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var err error
			if c.msg != "" {
				err = errors.New(c.msg)
			}
			got := Classify(err)
			if got != c.want {
				t.Errorf("Classify(%q) = %q, want %q", c.msg, got, c.want)
			}
		})
	}
}

func TestErrorKind_RetryableOnlyForRateLimitAndExchangeDown(t *testing.T) {
	retryable := []ErrorKind{KindRateLimit, KindExchangeDown}
	notRetryable := []ErrorKind{KindBadRequest, KindAuth, KindOrderNotFound, KindInsufficientBal, KindInvalidSignal, KindUnknown}

	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range notRetryable {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestWrap_PreservesUnderlyingErrorAndClassification(t *testing.T) {
	base := errors.New("code -1003 too many requests")
	wrapped := Wrap(base)

	ce, ok := wrapped.(*ClassifiedError)
	if !ok {
		t.Fatalf("expected *ClassifiedError, got %T", wrapped)
	}
	if ce.Kind != KindRateLimit {
		t.Errorf("kind = %s, want rate_limit", ce.Kind)
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected errors.Is to unwrap to the original error")
	}
}

func TestWrap_NilErrorReturnsNilInterface(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) must return a nil error, not a non-nil *ClassifiedError wrapping nil")
	}
}
