package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestConnectionError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewConnectionError("dial", "wss://ws.finnhub.io", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		want := "dial wss://ws.finnhub.io: connection refused"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalConnectionError("dial", "", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
		if err.Error() != "dial: connection refused" {
			t.Errorf("Error message = %q", err.Error())
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := fmt.Errorf("session: %w", NewConnectionError("read", "", baseErr))
		fatal := NewFatalConnectionError("dial", "", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for wrapped retriable error")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestDecodeErrorKinds(t *testing.T) {
	cause := errors.New("boom")

	enc := &DecodeError{Kind: KindEncoding, Err: cause}
	mal := &DecodeError{Kind: KindMalformed, Err: cause}

	if !errors.Is(enc, ErrInvalidEncoding) || errors.Is(enc, ErrMalformedPayload) {
		t.Error("encoding error should match ErrInvalidEncoding only")
	}
	if !errors.Is(mal, ErrMalformedPayload) || errors.Is(mal, ErrInvalidEncoding) {
		t.Error("malformed error should match ErrMalformedPayload only")
	}
	if !errors.Is(mal, cause) {
		t.Error("decode error should unwrap to its cause")
	}
	if mal.Error() != "decode malformed: boom" {
		t.Errorf("Error message = %q", mal.Error())
	}

	var de *DecodeError
	if !errors.As(fmt.Errorf("frame: %w", enc), &de) || de.Kind != KindEncoding {
		t.Error("errors.As should recover the DecodeError")
	}
}

func TestStorageAndWriteErrors(t *testing.T) {
	cause := errors.New("disk full")

	se := &StorageError{Symbol: "BINANCE:BTCUSDT", Err: cause}
	if se.Error() != "store trade [BINANCE:BTCUSDT]: disk full" {
		t.Errorf("Error message = %q", se.Error())
	}
	if IsRetriable(se) {
		t.Error("StorageError is dropped, not retried")
	}

	we := &WriteError{Symbol: "IC MARKETS:1", Err: cause}
	if !IsRetriable(we) {
		t.Error("WriteError should be retriable on the next tick")
	}
	if !errors.Is(we, cause) {
		t.Error("WriteError should unwrap to its cause")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "feed.ws_url", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [feed.ws_url]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
