package model

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBytes(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// serveModel points the package at a test server and registers a tiny
// fake entry in the model table.
func serveModel(t *testing.T, handler http.HandlerFunc) Info {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	oldURL := baseURL
	baseURL = srv.URL
	known = append(known, Info{"micro-test", mib})
	t.Cleanup(func() {
		baseURL = oldURL
		known = known[:len(known)-1]
	})

	t.Setenv(EnvDir, t.TempDir())
	return known[len(known)-1]
}

func TestLookup(t *testing.T) {
	info, ok := Lookup("base.en")
	if !ok || info.filename() != "ggml-base.en.bin" {
		t.Errorf("Lookup(base.en) = %+v, %v", info, ok)
	}
	if _, ok := Lookup("colossal"); ok {
		t.Error("unknown name resolved")
	}
}

func TestFind(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.bin")
		writeBytes(t, path, []byte("lmgg"))
		got, err := Find(path)
		if err != nil || got != path {
			t.Errorf("Find(%q) = %q, %v", path, got, err)
		}
	})
	t.Run("explicit path missing", func(t *testing.T) {
		if _, err := Find(filepath.Join(t.TempDir(), "gone.bin")); err == nil {
			t.Error("missing explicit path accepted")
		}
	})
	t.Run("installed name", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(EnvDir, dir)
		path := filepath.Join(dir, "ggml-tiny.bin")
		writeBytes(t, path, []byte("lmgg"))
		got, err := Find("tiny")
		if err != nil || got != path {
			t.Errorf("Find(tiny) = %q, %v", got, err)
		}
	})
	t.Run("uninstalled name", func(t *testing.T) {
		t.Setenv(EnvDir, t.TempDir())
		_, err := Find("tiny")
		if err == nil || !strings.Contains(err.Error(), "fetch-model") {
			t.Errorf("err = %v, want install hint", err)
		}
	})
	t.Run("unknown name", func(t *testing.T) {
		_, err := Find("colossal")
		if err == nil || !strings.Contains(err.Error(), "unknown model") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestValidateHeader(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.bin")
	writeBytes(t, good, []byte("lmgg\x00\x00\x00\x00"))
	if err := ValidateHeader(good); err != nil {
		t.Errorf("valid header rejected: %v", err)
	}

	bad := filepath.Join(dir, "bad.bin")
	writeBytes(t, bad, []byte("RIFF0000"))
	if err := ValidateHeader(bad); err == nil {
		t.Error("wav header accepted as ggml")
	}

	short := filepath.Join(dir, "short.bin")
	writeBytes(t, short, []byte("lm"))
	if err := ValidateHeader(short); err == nil {
		t.Error("truncated file accepted")
	}
}

func TestFetchDownloads(t *testing.T) {
	body := []byte("MODELDATA")
	info := serveModel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ggml-micro-test.bin" {
			t.Errorf("fetched %q", r.URL.Path)
		}
		w.Write(body)
	})

	path, err := Fetch(info.Name)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != string(body) {
		t.Errorf("installed content = %q, %v", got, err)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestFetchResumes(t *testing.T) {
	var sawRange string
	info := serveModel(t, func(w http.ResponseWriter, r *http.Request) {
		sawRange = r.Header.Get("Range")
		if sawRange == "bytes=5-" {
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte(" WORLD"))
			return
		}
		w.Write([]byte("HELLO WORLD"))
	})

	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(dir, "ggml-micro-test.bin.part"), []byte("HELLO"))

	path, err := Fetch(info.Name)
	if err != nil {
		t.Fatal(err)
	}
	if sawRange != "bytes=5-" {
		t.Errorf("range header = %q", sawRange)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "HELLO WORLD" {
		t.Errorf("content = %q", got)
	}
}

func TestFetchRestartsWhenRangeIgnored(t *testing.T) {
	info := serveModel(t, func(w http.ResponseWriter, r *http.Request) {
		// 200 regardless of the Range header
		w.Write([]byte("FRESH"))
	})

	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(dir, "ggml-micro-test.bin.part"), []byte("STALE-STALE"))

	path, err := Fetch(info.Name)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "FRESH" {
		t.Errorf("content = %q, want restart from scratch", got)
	}
}

func TestFetchSkipsInstalled(t *testing.T) {
	info := serveModel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server contacted for an installed model")
	})

	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "ggml-micro-test.bin")
	writeBytes(t, dest, []byte("lmgg"))

	path, err := Fetch(info.Name)
	if err != nil || path != dest {
		t.Errorf("Fetch = %q, %v", path, err)
	}
}

func TestFetchUnknown(t *testing.T) {
	if _, err := Fetch("colossal"); err == nil {
		t.Error("unknown model fetched")
	}
}
