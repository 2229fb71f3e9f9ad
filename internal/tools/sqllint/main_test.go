package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("package q\n\n"+body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintAcceptsMarkedQueries(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "const QOne = `--sql 69908c4c-41e4-4b56-8b66-353abd9b8c9e\nSELECT 1`\n")
	writeGo(t, dir, "b.go", "const QTwo = `--sql a6e6450f-47c1-445c-9713-4171516008d5\nDELETE FROM t`\nconst Label = \"not sql\"\n")

	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
}

func TestLintReportsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "const QBad = `SELECT * FROM jobs`\n")

	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "QBad" || !strings.Contains(vs[0].message, "missing") {
		t.Fatalf("violations = %+v", vs)
	}
}

func TestLintReportsDuplicateMarkersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql aebff153-ad00-4e27-af16-0d31aa775dc0"
	writeGo(t, dir, "a.go", "const QFirst = `"+marker+"\nSELECT 1`\n")
	writeGo(t, dir, "b.go", "const QSecond = `"+marker+"\nSELECT 2`\n")

	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 1 {
		t.Fatalf("violations = %+v", vs)
	}
	if vs[0].name != "QSecond" || !strings.Contains(vs[0].message, "QFirst") {
		t.Fatalf("violation = %+v", vs[0])
	}
}

func TestLintSkipsUnderscoreAndTestFiles(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, "_ref")
	if err := os.Mkdir(hidden, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeGo(t, hidden, "a.go", "const QBad = `SELECT 1`\n")
	writeGo(t, dir, "x_test.go", "const QBad = `SELECT 1`\n")

	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("violations = %+v", vs)
	}
}

func TestRepositoryQueriesAreClean(t *testing.T) {
	vs, err := lint([]string{filepath.Join("..", "..", "sqlinline")})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, v := range vs {
		t.Errorf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
	}
}
