package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
)

func readArchive(t *testing.T, name string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestReport_Archive(t *testing.T) {
	dir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(dir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	stored := filepath.Join(dir, "styles.log")
	if err := os.WriteFile(stored, []byte("log"), 0644); err != nil {
		t.Fatal(err)
	}
	r.Store("final.log", stored)
	r.Store("final.log", stored)
	r.Store("missing.log", filepath.Join(dir, "nope.log"))
	r.StoreData("out/main.css", []byte(".a{}"))
	r.StoreData("out/main.css", []byte(".b{}"))

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	files := readArchive(t, r.Name())

	if files["final.log"] != "log" {
		t.Errorf("final.log = %q", files["final.log"])
	}
	if _, ok := files["missing.log"]; ok {
		t.Error("absent file must be skipped")
	}
	var css []string
	for name, content := range files {
		if strings.HasPrefix(name, "out/main") && strings.HasSuffix(name, ".css") {
			css = append(css, content)
		}
	}
	sort.Strings(css)
	if strings.Join(css, ",") != ".a{},.b{}" {
		t.Errorf("stored data = %v", css)
	}
	if m := files["MANIFEST"]; !strings.Contains(m, "final.log") || strings.Count(m, "\n") != 4 {
		t.Errorf("MANIFEST =\n%s", m)
	}
}

func TestReport_StoreCopy(t *testing.T) {
	dir := t.TempDir()
	r, err := (&ReporterConfig{Destination: filepath.Join(dir, "report.zip")}).Prepare()
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "a.css"), []byte("before"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.StoreCopy("sources", src); err != nil {
		t.Fatalf("StoreCopy() error = %v", err)
	}
	// later changes must not affect the copy
	if err := os.WriteFile(filepath.Join(src, "nested", "a.css"), []byte("after"), 0644); err != nil {
		t.Fatal(err)
	}

	temps := append([]string(nil), r.temps...)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if got := readArchive(t, r.Name())["sources/nested/a.css"]; got != "before" {
		t.Errorf("copied file = %q, want %q", got, "before")
	}
	for _, d := range temps {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("temporary copy %s was not removed", d)
		}
	}
	if err := r.StoreCopy("x", filepath.Join(dir, "absent")); err == nil {
		t.Error("StoreCopy() of absent path must fail")
	}
}

func TestReport_Concurrent(t *testing.T) {
	r, err := (&ReporterConfig{Destination: filepath.Join(t.TempDir(), "report.zip")}).Prepare()
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			r.StoreData("ast.txt", []byte("x"))
		})
	}
	wg.Wait()
	if len(r.entries) != 16 {
		t.Errorf("entries = %d, want 16", len(r.entries))
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReport_Nil(t *testing.T) {
	var r *Report
	r.Store("a", "b")
	r.StoreData("a", nil)
	if err := r.StoreCopy("a", "b"); err != nil {
		t.Error(err)
	}
	if r.Name() != "" || r.Close() != nil {
		t.Error("nil report must be inert")
	}
}
