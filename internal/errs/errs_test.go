package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInvalidTransition, http.StatusConflict},
		// A version conflict means the serialization invariant broke; it is
		// an internal failure, not something the caller did wrong.
		{CodeVersionConflict, http.StatusInternalServerError},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(New(tc.code, "x")); got != tc.want {
			t.Fatalf("StatusOf(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	base := New(CodeNotFound, "package not found")
	wrapped := fmt.Errorf("load package: %w", base)

	if CodeOf(wrapped) != CodeNotFound {
		t.Fatalf("CodeOf(wrapped) = %s", CodeOf(wrapped))
	}
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatal("IsCode should see through fmt wrapping")
	}
	if StatusOf(wrapped) != http.StatusNotFound {
		t.Fatalf("StatusOf(wrapped) = %d", StatusOf(wrapped))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeUpstream, "fetch rates", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Wrap must preserve the cause chain")
	}
	if !IsCode(err, CodeUpstream) {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestUnknownErrorDefaults(t *testing.T) {
	err := errors.New("plain")
	if CodeOf(err) != CodeInternal {
		t.Fatalf("CodeOf(plain) = %s", CodeOf(err))
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("StatusOf(plain) = %d", StatusOf(err))
	}
}
