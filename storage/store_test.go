package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.docx":           "report.docx",
		"../../evil.txt":        "evil.txt",
		"sub/dir/name.txt":      "name.txt",
		`..\..\evil.txt`:        "evil.txt",
		`C:\Users\me\draft.odt`: "draft.odt",
		"/etc/passwd":           "passwd",
		"  spaced name.pdf  ":   "spaced name.pdf",
	}
	for in, want := range cases {
		got, err := SanitizeFilename(in)
		if err != nil {
			t.Errorf("SanitizeFilename(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilenameRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "..", "dir/..", "/", `\`, ".partial", "bad\x00name", "tab\tname"} {
		if got, err := SanitizeFilename(in); !errors.Is(err, ErrUnsafeFilename) {
			t.Errorf("SanitizeFilename(%q) = %q, %v; want ErrUnsafeFilename", in, got, err)
		}
	}
}

func TestValidateNameRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../etc/passwd", "..", "a/b", `a\b`, "/abs", "x..y"} {
		if err := ValidateName(name); !errors.Is(err, ErrUnsafeFilename) {
			t.Errorf("ValidateName(%q) = %v, want ErrUnsafeFilename", name, err)
		}
	}
}

func TestWithinRequiresSegmentBoundary(t *testing.T) {
	root := filepath.FromSlash("/data/store")
	cases := []struct {
		candidate string
		want      bool
	}{
		{"/data/store", true},
		{"/data/store/file.txt", true},
		{"/data/store-evil/file.txt", false},
		{"/data/storefile.txt", false},
		{"/data/file.txt", false},
		{"/etc/passwd", false},
	}
	for _, tc := range cases {
		if got := within(root, filepath.FromSlash(tc.candidate)); got != tc.want {
			t.Errorf("within(%q, %q) = %v, want %v", root, tc.candidate, got, tc.want)
		}
	}
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	payload := []byte("binary\x00\xff\r\n--boundary--\r\n  ")

	stored, err := s.Save("doc.bin", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if stored.Size != int64(len(payload)) {
		t.Errorf("Expected size %d, got %d", len(payload), stored.Size)
	}
	if filepath.Dir(stored.Path) != s.Root() {
		t.Errorf("Stored path %s is not directly inside %s", stored.Path, s.Root())
	}

	f, info, err := s.Open("doc.bin")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	if info.Size() != int64(len(payload)) {
		t.Errorf("Expected size %d, got %d", len(payload), info.Size())
	}

	data, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Content mismatch: got %q", data)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), partialDir))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no leftover temp files, found %d", len(entries))
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save("a.txt", strings.NewReader("first version, longer")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Save("a.txt", strings.NewReader("second")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected overwrite, got %q", data)
	}
}

func TestOpenMissingAndDirectories(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Open("missing.pdf"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "folder"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, _, err := s.Open("folder"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound for directory, got %v", err)
	}
	if _, _, err := s.Open(partialDir); !errors.Is(err, ErrUnsafeFilename) {
		t.Errorf("Expected ErrUnsafeFilename for staging directory, got %v", err)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	s := newTestStore(t)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := s.Resolve("link.txt"); !errors.Is(err, ErrUnsafeFilename) {
		t.Errorf("Expected ErrUnsafeFilename for escaping symlink, got %v", err)
	}
	if _, _, err := s.Open("link.txt"); err == nil {
		t.Error("Open must not follow a link outside the root")
	}
}

func TestSiblingRootNotReachable(t *testing.T) {
	base := t.TempDir()
	s, err := NewStore(filepath.Join(base, "store"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	sibling := filepath.Join(base, "store-evil")
	if err := os.Mkdir(sibling, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if within(s.Root(), filepath.Join(sibling, "x.txt")) {
		t.Error("Sibling directory sharing a string prefix must not count as inside the root")
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.PDF":    "application/pdf",
		"b.docx":   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"c.csv":    "text/csv",
		"d.tar.gz": "application/octet-stream",
		"noext":    "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
