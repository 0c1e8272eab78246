package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateMessageContent(t *testing.T) {
	if err := ValidateMessageContent("hello"); err != nil {
		t.Errorf("valid content rejected: %v", err)
	}
	if err := ValidateMessageContent(""); err == nil {
		t.Error("empty content accepted")
	}
	if err := ValidateMessageContent(strings.Repeat("a", 100001)); err == nil {
		t.Error("oversized content accepted")
	}
	if err := ValidateMessageContent("bad \xff utf8"); err == nil {
		t.Error("invalid UTF-8 accepted")
	}
}

func TestValidateSessionID(t *testing.T) {
	if err := ValidateSessionID(uuid.New().String()); err != nil {
		t.Errorf("valid UUID rejected: %v", err)
	}
	if err := ValidateSessionID("not-a-uuid"); err == nil {
		t.Error("invalid session ID accepted")
	}
}

func TestValidateTitle(t *testing.T) {
	if err := ValidateTitle(""); err != nil {
		t.Errorf("empty title rejected: %v", err)
	}
	if err := ValidateTitle(strings.Repeat("a", 257)); err == nil {
		t.Error("oversized title accepted")
	}
}
