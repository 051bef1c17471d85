package core

import "testing"

func TestShellEscapePosix_Table(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"simple", "abc", "abc"},
		{"flag", "--build", "--build"},
		{"bind address", "0.0.0.0:8000", "0.0.0.0:8000"},
		{"single quote", "a'b", "'a'\"'\"'b'"},
		{"empty string", "", "''"},
		{"spaces", "a b c", "'a b c'"},
		{"path with spaces", "/tmp/a b", "'/tmp/a b'"},
		{"double quotes", `a"b`, `'a"b'`},
		{"dollar sign", "a$b", "'a$b'"},
		{"backticks", "a`b", "'a`b'"},
		{"newline", "a\nb", "'a\nb'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShellEscapePosix(tt.input)
			if got != tt.expect {
				t.Errorf("ShellEscapePosix(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name   string
		cmd    string
		args   []string
		expect string
	}{
		{"no args", "docker", nil, "docker"},
		{"compose up", "docker", []string{"compose", "up", "-d", "--build"}, "docker compose up -d --build"},
		{"quoted arg", "sh", []string{"-c", "echo hi"}, "sh -c 'echo hi'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommandLine(tt.cmd, tt.args)
			if got != tt.expect {
				t.Errorf("CommandLine(%q, %q) = %q, want %q", tt.cmd, tt.args, got, tt.expect)
			}
		})
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		name   string
		dir    string
		line   string
		expect string
	}{
		{"simple path", "/tmp/app", "docker compose up", "cd /tmp/app && docker compose up"},
		{"path with spaces", "/tmp/a b", "ls", "cd '/tmp/a b' && ls"},
		{"path with single quote", "/tmp/it's", "ls", "cd '/tmp/it'\"'\"'s' && ls"},
		{"empty dir", "", "ls", "ls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InDir(tt.dir, tt.line)
			if got != tt.expect {
				t.Errorf("InDir(%q, %q) = %q, want %q", tt.dir, tt.line, got, tt.expect)
			}
		})
	}
}
