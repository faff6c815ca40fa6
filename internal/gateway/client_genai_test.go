package gateway

import (
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestGenAIRoleMapping(t *testing.T) {
	if got := genaiRole(RoleAssistant); got != genai.RoleModel {
		t.Errorf("assistant role = %q, want %q", got, genai.RoleModel)
	}
	if got := genaiRole(RoleUser); got != genai.RoleUser {
		t.Errorf("user role = %q, want %q", got, genai.RoleUser)
	}
	// System turns are folded upstream; anything unexpected degrades to user
	if got := genaiRole(RoleSystem); got != genai.RoleUser {
		t.Errorf("system role = %q, want %q", got, genai.RoleUser)
	}
}

func TestGenAIClientCloseIsSafe(t *testing.T) {
	c := &GenAIClient{}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestClassifyGenAIError(t *testing.T) {
	tests := []struct {
		name  string
		in    error
		check func(error) bool
	}{
		{"unauthorized", genai.APIError{Code: 401, Message: "bad key"}, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"forbidden", genai.APIError{Code: 403, Message: "no access"}, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"server_error", genai.APIError{Code: 500, Message: "boom"}, func(err error) bool {
			var e *TransportError
			return errors.As(err, &e)
		}},
		{"plain_error", errors.New("connection reset"), func(err error) bool {
			var e *TransportError
			return errors.As(err, &e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyGenAIError(tt.in); !tt.check(got) {
				t.Errorf("wrong error type: %v", got)
			}
		})
	}
}
