package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeTokenInvalid, http.StatusUnauthorized},
		{CodeTokenExpired, http.StatusUnauthorized},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeDependencyFailure, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load post: %w", New(CodeNotFound, "post not found"))
	if !errors.Is(err, New(CodeNotFound, "anything")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(err, New(CodeConflict, "post not found")) {
		t.Fatal("expected different code not to match")
	}
	if !HasCode(err, CodeNotFound) {
		t.Fatal("expected HasCode to report NOT_FOUND")
	}
}

func TestCodeOfUnknownError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeDependencyFailure {
		t.Fatalf("expected %s, got %s", CodeDependencyFailure, got)
	}
}

func TestMessageOfHidesDependencyDetail(t *testing.T) {
	err := Dependency(errors.New("connection refused to mongo:27017"))
	if got := MessageOf(err); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if !errors.Is(err, err.Cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
	if got := MessageOf(Validation("content is required")); got != "content is required" {
		t.Fatalf("expected validation message, got %q", got)
	}
}
