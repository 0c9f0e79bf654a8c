package storage

import (
	"path/filepath"
	"testing"
)

func TestArtifactStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s := NewFSArtifactStore(dir)

	origPath, err := s.WriteOriginal("job-1", 3, "png", []byte("orig"))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "jobs", "job-1", "original", "0003.png")
	if origPath != want {
		t.Errorf("original path = %q, want %q", origPath, want)
	}

	jsonPath, err := s.WriteLayout("job-1", 3, []byte(`{"items":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(jsonPath) != "0003.json" {
		t.Errorf("layout path = %q", jsonPath)
	}

	outPath, err := s.WriteOutput("job-1", 3, "png", []byte("out"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(outPath) != "0003.png" || filepath.Base(filepath.Dir(outPath)) != "output" {
		t.Errorf("output path = %q", outPath)
	}

	coverPath, err := s.WriteCover("job-1", "jpg", []byte("cover"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(coverPath) != "cover.jpg" {
		t.Errorf("cover path = %q", coverPath)
	}

	for path, want := range map[string]string{
		origPath:  "orig",
		jsonPath:  `{"items":[]}`,
		outPath:   "out",
		coverPath: "cover",
	} {
		got, err := s.Read(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("content of %s = %q, want %q", path, got, want)
		}
	}
}

func TestArtifactStoreOverwrite(t *testing.T) {
	s := NewFSArtifactStore(t.TempDir())

	if _, err := s.WriteLayout("j", 1, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	path, err := s.WriteLayout("j", 1, []byte("v2"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("content = %q, want the rewritten artifact", got)
	}
}
