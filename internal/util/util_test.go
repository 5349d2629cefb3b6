// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("Content = %q, want %q", content, "second")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestAtomicWriteFileWithDir_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}
	path := filepath.Join(t.TempDir(), "private", "config.toml")

	if err := AtomicWriteFileWithDir(path, []byte("x"), 0o600, 0o700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %o, want 600", info.Mode().Perm())
	}
	dirInfo, _ := os.Stat(filepath.Dir(path))
	if dirInfo.Mode().Perm() != 0o700 {
		t.Errorf("dir mode = %o, want 700", dirInfo.Mode().Perm())
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		input    string
		maxRunes int
		want     string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"안녕하세요 반갑습니다", 5, "안녕..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tc := range tests {
		if got := TruncateRunes(tc.input, tc.maxRunes); got != tc.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.input, tc.maxRunes, got, tc.want)
		}
	}
}

func TestStringWidth(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"abc", 3},
		{"안녕", 4},
		{"a가b", 4},
		{"", 0},
	}
	for _, tc := range tests {
		if got := StringWidth(tc.input); got != tc.want {
			t.Errorf("StringWidth(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		input    string
		maxWidth int
		want     string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"안녕하세요", 7, "안녕..."},
		{"안녕", 0, ""},
	}
	for _, tc := range tests {
		if got := TruncateWidth(tc.input, tc.maxWidth); got != tc.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.maxWidth, got, tc.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("가", 4); got != "가  " {
		t.Errorf("PadRight = %q", got)
	}
	if got := StringWidth(PadRight("가나다라마바", 8)); got != 8 {
		t.Errorf("PadRight width = %d, want 8", got)
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("  a\n\tb   c \r\n"); got != "a b c" {
		t.Errorf("SingleLine = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1500, "1.5 kB"},
		{-3, "0 B"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
