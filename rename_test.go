package yoloprep

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRenameImages(t *testing.T) {
	t.Run("sequential names", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "b.PNG"), "b")
		touch(t, filepath.Join(dir, "a.jpg"), "a")
		touch(t, filepath.Join(dir, "C.png"), "c")
		touch(t, filepath.Join(dir, "notes.txt"), "n")

		plan, err := RenameImages(dir, RenameOptions{Padding: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []Rename{
			{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "000.jpg")},
			{filepath.Join(dir, "b.PNG"), filepath.Join(dir, "001.png")},
			{filepath.Join(dir, "C.png"), filepath.Join(dir, "002.png")},
		}
		if !reflect.DeepEqual(plan, want) {
			t.Errorf("expected %v, got %v", want, plan)
		}
		if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"000.jpg", "001.png", "002.png", "notes.txt"}) {
			t.Errorf("unexpected files %v", got)
		}
		if readFile(t, filepath.Join(dir, "001.png")) != "b" {
			t.Error("contents were mixed up")
		}
	})

	t.Run("targets within the set", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "001.png"), "first")
		touch(t, filepath.Join(dir, "002.png"), "second")

		if _, err := RenameImages(dir, RenameOptions{Padding: 3}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if readFile(t, filepath.Join(dir, "000.png")) != "first" ||
			readFile(t, filepath.Join(dir, "001.png")) != "second" {
			t.Error("files were not shifted correctly")
		}
		if got := listDir(t, dir); len(got) != 2 {
			t.Errorf("unexpected files %v", got)
		}
	})

	t.Run("labels", func(t *testing.T) {
		dir, labels := t.TempDir(), t.TempDir()
		touch(t, filepath.Join(dir, "cat.jpg"), "")
		touch(t, filepath.Join(dir, "dog.jpg"), "")
		touch(t, filepath.Join(labels, "cat.json"), "{}")

		if _, err := RenameImages(dir, RenameOptions{Start: 10, Padding: 4, LabelDir: labels}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"0010.jpg", "0011.jpg"}) {
			t.Errorf("unexpected images %v", got)
		}
		if got := listDir(t, labels); !reflect.DeepEqual(got, []string{"0010.json"}) {
			t.Errorf("unexpected labels %v", got)
		}
	})

	t.Run("dry run", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "x.jpg"), "")
		plan, err := RenameImages(dir, RenameOptions{Padding: 2, DryRun: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(plan) != 1 || plan[0].To != filepath.Join(dir, "00.jpg") {
			t.Errorf("unexpected plan %v", plan)
		}
		if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"x.jpg"}) {
			t.Errorf("dry run renamed files: %v", got)
		}
	})

	t.Run("padding capacity", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "a.jpg"), "")
		touch(t, filepath.Join(dir, "b.jpg"), "")
		if _, err := RenameImages(dir, RenameOptions{Start: 9, Padding: 1}); err == nil {
			t.Fatal("expected an error")
		}
		if _, err := RenameImages(dir, RenameOptions{Start: 9, Padding: 1, Force: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"10.jpg", "9.jpg"}) {
			t.Errorf("unexpected files %v", got)
		}
	})

	t.Run("conflict", func(t *testing.T) {
		dir, labels := t.TempDir(), t.TempDir()
		touch(t, filepath.Join(dir, "a.png"), "")
		touch(t, filepath.Join(labels, "a.json"), "")
		touch(t, filepath.Join(labels, "000.json"), "")

		_, err := RenameImages(dir, RenameOptions{Padding: 3, LabelDir: labels})
		if !errors.Is(err, ErrRenameConflict) {
			t.Fatalf("expected ErrRenameConflict, got %v", err)
		}
		if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"a.png"}) {
			t.Errorf("files were renamed: %v", got)
		}
	})

	t.Run("extension filter", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "a.jpg"), "")
		touch(t, filepath.Join(dir, "b.png"), "")
		if _, err := RenameImages(dir, RenameOptions{Padding: 1, Exts: []string{"PNG"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"0.png", "a.jpg"}) {
			t.Errorf("unexpected files %v", got)
		}
		if DefaultImageExts[0] != ".jpg" {
			t.Error("the default extensions were modified")
		}
	})

	t.Run("unknown sort order", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "a.jpg"), "")
		if _, err := RenameImages(dir, RenameOptions{SortBy: "size"}); err == nil {
			t.Error("expected an error")
		}
	})
}
