package category

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

type failingFs struct {
	afero.Fs
	failWrites bool
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.failWrites && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, errors.New("disk full")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestMissingFileIsEmptyCategory(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")

	ok, err := s.Contains(Hates, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected empty category to contain nothing")
	}
	items, err := s.Items(Favourites)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected no items, got %v (err %v)", items, err)
	}
}

func TestAppendWritesOneIDPerLine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := New(fsys, "/data")

	for _, id := range []string{"1", "2", "1"} {
		if err := s.Append(Endeds, id, Endeds.AllowsDuplicates()); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	data, err := afero.ReadFile(fsys, "/data/endeds.txt")
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if got := string(data); got != "1\n2\n1\n" {
		t.Fatalf("expected log with repeats, got %q", got)
	}
}

func TestSetCategoriesDeduplicate(t *testing.T) {
	cases := []struct {
		name Name
		want []string
	}{
		{Favourites, []string{"7"}},
		{Hates, []string{"7"}},
		{Skipped, []string{"7", "7"}},
		{Failed, []string{"7", "7"}},
	}
	for _, tc := range cases {
		s := New(afero.NewMemMapFs(), "/data")
		s.Append(tc.name, "7", tc.name.AllowsDuplicates())
		s.Append(tc.name, "7", tc.name.AllowsDuplicates())

		got, err := s.Items(tc.name)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestReadsExistingFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/data/hates.txt", []byte("10\n\n 11 \n"), 0o644)
	s := New(fsys, "/data")

	for _, id := range []string{"10", "11"} {
		ok, err := s.Contains(Hates, id)
		if err != nil || !ok {
			t.Fatalf("expected %s to be hated, got %v (err %v)", id, ok, err)
		}
	}
}

func TestCacheServesReadsAfterWrite(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := New(fsys, "/data")
	if err := s.Append(Favourites, "5", false); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Out-of-band edits are not seen by a store that already loaded the file.
	afero.WriteFile(fsys, "/data/favourites.txt", []byte(""), 0o644)
	if ok, _ := s.Contains(Favourites, "5"); !ok {
		t.Fatal("expected cached membership after write")
	}

	fresh := New(fsys, "/data")
	if ok, _ := fresh.Contains(Favourites, "5"); ok {
		t.Fatal("expected disk contents in a fresh store")
	}
}

func TestFailedWriteInvalidatesCache(t *testing.T) {
	fsys := &failingFs{Fs: afero.NewMemMapFs()}
	s := New(fsys, "/data")
	if err := s.Append(Hates, "1", false); err != nil {
		t.Fatalf("append: %v", err)
	}

	fsys.failWrites = true
	err := s.Append(Hates, "2", false)
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	fsys.failWrites = false

	items, err := s.Items(Hates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(items, []string{"1"}) {
		t.Fatalf("expected on-disk contents after failed write, got %v", items)
	}
}

func TestAppendRejectsMultilineID(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	if err := s.Append(Hates, "1\n2", false); err == nil {
		t.Fatal("expected error for id containing newline")
	}
}

func TestParseName(t *testing.T) {
	n, err := ParseName(" Favourites ")
	if err != nil || n != Favourites {
		t.Fatalf("ParseName = %q, %v", n, err)
	}
	if _, err := ParseName("likes"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
