package cmd

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input     string
		assumeYes bool
		want      bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
		{input: "", assumeYes: true, want: true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		confirm := promptConfirm(strings.NewReader(tt.input), &out, tt.assumeYes)
		if got := confirm("Delete user?"); got != tt.want {
			t.Fatalf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if tt.assumeYes && out.Len() != 0 {
			t.Fatalf("expected no prompt with assumeYes, got %q", out.String())
		}
	}
}

func TestReadValueSharesBuffer(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("ada@example.com\nsecret\n"))
	var out bytes.Buffer
	email := readValue(in, &out, "Email", "")
	password := readValue(in, &out, "Password", "")
	if email != "ada@example.com" || password != "secret" {
		t.Fatalf("got %q and %q", email, password)
	}
	if got := readValue(in, &out, "Email", "flag@example.com"); got != "flag@example.com" {
		t.Fatalf("expected flag value to win, got %q", got)
	}
	if out.String() != "Email: Password: " {
		t.Fatalf("unexpected prompts %q", out.String())
	}
}

func TestShellRejectsUnknownCommand(t *testing.T) {
	sh := &shell{out: &bytes.Buffer{}}
	if err := sh.run(context.Background(), "frobnicate", nil); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := sh.run(context.Background(), "quit", nil); err != errQuit {
		t.Fatalf("expected quit, got %v", err)
	}
}
