package validation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kbukum/mmrunner/errors"
)

func TestIsRelease(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"", true},
		{"latest", true},
		{"20250310", true},
		{"2025031", false},
		{"202503101", false},
		{"Latest", false},
		{"2025-03-10", false},
		{"latest; rm -rf /", false},
	}
	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			if got := IsRelease(tc.tag); got != tc.want {
				t.Errorf("IsRelease(%q) = %v, want %v", tc.tag, got, tc.want)
			}
		})
	}
}

func TestStructValidateRelease(t *testing.T) {
	type req struct {
		Release string `json:"release" validate:"release"`
	}

	if err := Validate(req{Release: "20240101"}); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	err := Validate(req{Release: "nightly"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
	if !strings.Contains(err.Error(), "release") {
		t.Errorf("expected error to mention 'release', got %q", err.Error())
	}
}

func TestStructValidateArgv(t *testing.T) {
	type runner struct {
		Command []string `mapstructure:"command" validate:"argv"`
	}
	type cfg struct {
		Runner runner `mapstructure:"runner"`
	}

	tests := []struct {
		name    string
		argv    []string
		wantErr bool
	}{
		{"valid", []string{"mmcore", "install"}, false},
		{"empty", nil, true},
		{"blank executable", []string{"  ", "install"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(cfg{Runner: runner{Command: tc.argv}})
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil {
				return
			}
			appErr, _ := errors.AsAppError(err)
			fields, ok := appErr.Details["fields"].([]FieldError)
			if !ok || len(fields) != 1 {
				t.Fatalf("expected one field error, got %v", appErr.Details)
			}
			if fields[0].Field != "runner.command" {
				t.Errorf("expected field path runner.command, got %q", fields[0].Field)
			}
		})
	}
}

func TestStructValidateRequiredMin(t *testing.T) {
	type input struct {
		Name    string `json:"name" validate:"required"`
		History int    `json:"history" validate:"min=1"`
	}

	err := Validate(input{History: 0})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "name: is required") {
		t.Errorf("expected required message, got %q", msg)
	}
	if !strings.Contains(msg, "history: must be at least 1") {
		t.Errorf("expected min message, got %q", msg)
	}
}

func TestValidatorCollects(t *testing.T) {
	v := New()
	v.Required("name", "   ").
		MinLength("auth.secret", "short", 32).
		Argv("runner.command", []string{""}).
		Custom(true, "ok", "never recorded")

	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %v", v.Errors())
	}
	appErr := v.Validate()
	if appErr == nil {
		t.Fatal("expected error")
	}
	for _, f := range []string{"name", "auth.secret", "runner.command"} {
		if !strings.Contains(appErr.Message, f) {
			t.Errorf("expected %q in message %q", f, appErr.Message)
		}
	}
}

func TestValidatorValidateEmpty(t *testing.T) {
	if appErr := New().Required("name", "x").Validate(); appErr != nil {
		t.Errorf("expected nil, got %v", appErr)
	}
}

func TestValidatorMerge(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required"`
	}

	v := New()
	v.Merge("ignored", Validate(input{}))
	v.Merge("server", fmt.Errorf("server.port out of range"))
	v.Merge("nothing", nil)

	errs := v.Errors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if errs[0].Field != "name" {
		t.Errorf("expected merged struct field 'name', got %q", errs[0].Field)
	}
	if errs[1].Field != "server" {
		t.Errorf("expected plain error recorded on 'server', got %q", errs[1].Field)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"GracePeriod": "grace_period",
		"Name":        "name",
		"runID":       "run_i_d",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
