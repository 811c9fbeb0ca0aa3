package main

import (
	"errors"
	"testing"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "validate", "report", "replay", "reeval", "init"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestExitCodeForVerdict(t *testing.T) {
	tests := []struct {
		verdict models.Verdict
		want    int
	}{
		{models.VerdictPass, 0},
		{models.VerdictFail, 1},
		{models.VerdictPartial, 1},
		{models.VerdictHardFail, 2},
		{models.VerdictInfraError, 3},
		{models.Verdict("SOMETHING_NEW"), 1},
	}
	for _, tt := range tests {
		if got := exitCodeForVerdict(tt.verdict); got != tt.want {
			t.Errorf("exitCodeForVerdict(%q) = %d, want %d", tt.verdict, got, tt.want)
		}
	}
}

func TestExitWithCode(t *testing.T) {
	if err := exitWithCode(0); err != nil {
		t.Fatalf("exitWithCode(0) = %v, want nil", err)
	}

	err := exitWithCode(2)
	var exit *exitError
	if !errors.As(err, &exit) {
		t.Fatalf("exitWithCode(2) = %v, want *exitError", err)
	}
	if exit.code != 2 {
		t.Errorf("exit code = %d, want 2", exit.code)
	}
}

func TestRunCmdFlagDefaults(t *testing.T) {
	cmd := buildRunCmd()
	tests := []struct {
		flag string
		want string
	}{
		{"trials", "3"},
		{"parallel", "1"},
		{"json", "false"},
		{"early-stop", "false"},
		{"allow-infra", "false"},
		{"record", "false"},
		{"watch", "false"},
	}
	for _, tt := range tests {
		f := cmd.Flags().Lookup(tt.flag)
		if f == nil {
			t.Fatalf("flag %q not registered", tt.flag)
		}
		if f.DefValue != tt.want {
			t.Errorf("flag %q default = %q, want %q", tt.flag, f.DefValue, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q, want %q", got, "01234567")
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short input = %q, want %q", got, "abc")
	}
}

func TestShortHash(t *testing.T) {
	if got := shortHash("feedfacecafebeef00"); got != "feedfacecafe" {
		t.Errorf("shortHash = %q, want %q", got, "feedfacecafe")
	}
	if got := shortHash("ab"); got != "ab" {
		t.Errorf("shortHash short input = %q, want %q", got, "ab")
	}
}

func TestAssertionSeverity(t *testing.T) {
	hard := models.EvalResult{Required: true, Passed: false}
	soft := models.EvalResult{Required: false, Passed: false}
	pass := models.EvalResult{Required: true, Passed: true}

	if assertionSeverity(hard) >= assertionSeverity(soft) {
		t.Error("hard failures must sort before soft failures")
	}
	if assertionSeverity(soft) >= assertionSeverity(pass) {
		t.Error("soft failures must sort before passes")
	}
}
