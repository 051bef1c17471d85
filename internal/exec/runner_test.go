package exec

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRealRunner_ExitCode(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		expectCode int
	}{
		{"exit 0", []string{"-c", "exit 0"}, 0},
		{"exit 1", []string{"-c", "exit 1"}, 1},
		{"exit 42", []string{"-c", "exit 42"}, 42},
	}

	r := NewRealRunner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Run(context.Background(), "sh", tt.args, RunOpts{})
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			if result.ExitCode != tt.expectCode {
				t.Errorf("exit code = %d, want %d", result.ExitCode, tt.expectCode)
			}
		})
	}
}

func TestRealRunner_StdoutStderr(t *testing.T) {
	r := NewRealRunner()
	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo stdout; echo stderr >&2"}, RunOpts{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !strings.Contains(result.Stdout, "stdout") {
		t.Errorf("stdout = %q, want to contain 'stdout'", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "stderr") {
		t.Errorf("stderr = %q, want to contain 'stderr'", result.Stderr)
	}
}

func TestRealRunner_StreamsAndCaptures(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRealRunner()
	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo hello; echo oops >&2"}, RunOpts{
		Stdout: &out,
		Stderr: &errOut,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.String() != "hello\n" || result.Stdout != "hello\n" {
		t.Errorf("streamed %q captured %q, want both %q", out.String(), result.Stdout, "hello\n")
	}
	if errOut.String() != "oops\n" {
		t.Errorf("streamed stderr = %q", errOut.String())
	}
}

func TestRealRunner_Stdin(t *testing.T) {
	r := NewRealRunner()
	result, err := r.Run(context.Background(), "sh", []string{"-c", "read line; echo got:$line"}, RunOpts{
		Stdin: strings.NewReader("admin\n"),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "got:admin" {
		t.Errorf("stdout = %q, want got:admin", result.Stdout)
	}
}

func TestRealRunner_StartFailure(t *testing.T) {
	r := NewRealRunner()
	_, err := r.Run(context.Background(), "no_such_command_abc123", nil, RunOpts{})
	if err == nil {
		t.Errorf("Run with non-existent command should return error")
	}
}

func TestRealRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewRealRunner()
	_, err := r.Run(ctx, "sh", []string{"-c", "exec sleep 10"}, RunOpts{})
	if err != context.DeadlineExceeded {
		t.Errorf("Run after deadline should return context.DeadlineExceeded, got: %v", err)
	}
}

func TestRealRunner_Dir(t *testing.T) {
	dir := t.TempDir()
	r := NewRealRunner()
	result, err := r.Run(context.Background(), "sh", []string{"-c", "pwd"}, RunOpts{Dir: dir})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// On macOS, temp dirs live behind the /private symlink
	if !strings.HasSuffix(strings.TrimSpace(result.Stdout), strings.TrimPrefix(dir, "/private")) {
		t.Errorf("with Dir=%s, pwd output = %q", dir, result.Stdout)
	}
}

func TestRealRunner_Env(t *testing.T) {
	r := NewRealRunner()
	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo $TEST_VAR"}, RunOpts{
		Env: map[string]string{"TEST_VAR": "hello_world"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !strings.Contains(result.Stdout, "hello_world") {
		t.Errorf("with Env, output = %q, want to contain 'hello_world'", result.Stdout)
	}
}
