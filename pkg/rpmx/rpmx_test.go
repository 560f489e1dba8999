package rpmx

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTooBasic(t *testing.T) {
	type testcase struct {
		input string
		want  bool
	}

	for n, c := range map[string]testcase{
		"filesystem":     {input: "filesystem-x86_64", want: true},
		"tzdata":         {input: "tzdata", want: true},
		"langpack":       {input: "glibc-minimal-langpack", want: true},
		"glibc itself":   {input: "glibc", want: false},
		"python libs":    {input: "python3-libs", want: false},
		"random package": {input: "openssl-libs", want: false},
	} {
		t.Run(n, func(t *testing.T) {
			got := TooBasic(c.input)
			if got != c.want {
				t.Errorf(`TooBasic(%q): wanted %t, got %t`, c.input, c.want, got)
			}
		})
	}
}

func TestDB_Resolve(t *testing.T) {
	var calls [][]string
	db := New("x86_64")
	db.exec = func(name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return []byte("python3-libs\nglibc\nfilesystem-x86_64\npython3-libs\ntzdata\n"), nil
	}

	got, err := db.Resolve([]string{"python3"})
	if err != nil {
		t.Fatalf(`Resolve(): unexpected error: %v`, err)
	}

	// Base-system packages are filtered, duplicates folded, and the
	// requested packages always close the list.
	want := []string{"python3-libs", "glibc", "python3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf(`Resolve(): unexpected closure (-want +got):%s`, diff)
	}

	wantCalls := [][]string{{
		"repoquery",
		"--archlist=noarch,x86_64",
		"--cacheonly",
		"--installed",
		"--resolve",
		"--requires",
		"--recursive",
		"python3",
	}}
	if diff := cmp.Diff(wantCalls, calls); diff != "" {
		t.Errorf(`Resolve(): unexpected query (-want +got):%s`, diff)
	}
}

func TestDB_Resolve_entryRetention(t *testing.T) {
	// Even a package the filter would drop must survive when it is the
	// one requested.
	db := New("x86_64")
	db.exec = func(name string, args ...string) ([]byte, error) {
		return []byte("glibc\n"), nil
	}

	got, err := db.Resolve([]string{"coreutils"})
	if err != nil {
		t.Fatalf(`Resolve(): unexpected error: %v`, err)
	}

	want := []string{"glibc", "coreutils"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf(`Resolve(): unexpected closure (-want +got):%s`, diff)
	}
}

func TestDB_Resolve_queryError(t *testing.T) {
	queryErr := errors.New("repoquery: exit status 1")
	db := New("x86_64")
	db.exec = func(name string, args ...string) ([]byte, error) {
		return nil, queryErr
	}

	_, err := db.Resolve([]string{"python3"})
	if !errors.Is(err, queryErr) {
		t.Fatalf(`Resolve(): wanted %v, got %v`, queryErr, err)
	}
}

func TestDB_ListFiles(t *testing.T) {
	var calls [][]string
	db := New("x86_64")
	db.exec = func(name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return []byte("/usr/bin/python3.9\n\n/usr/lib64/libpython3.9.so.1.0\n"), nil
	}

	got, err := db.ListFiles([]string{"python3", "python3-libs"})
	if err != nil {
		t.Fatalf(`ListFiles(): unexpected error: %v`, err)
	}

	want := []string{"/usr/bin/python3.9", "/usr/lib64/libpython3.9.so.1.0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf(`ListFiles(): unexpected files (-want +got):%s`, diff)
	}

	wantCalls := [][]string{{
		"repoquery",
		"--installed",
		"--cacheonly",
		"--list",
		"python3",
		"python3-libs",
	}}
	if diff := cmp.Diff(wantCalls, calls); diff != "" {
		t.Errorf(`ListFiles(): unexpected query (-want +got):%s`, diff)
	}
}

func TestDB_ListDocs(t *testing.T) {
	var calls [][]string
	db := New("x86_64")
	db.exec = func(name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return []byte("/usr/share/doc/python3/README.rst\n"), nil
	}

	got, err := db.ListDocs("python3")
	if err != nil {
		t.Fatalf(`ListDocs(): unexpected error: %v`, err)
	}

	want := []string{"/usr/share/doc/python3/README.rst"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf(`ListDocs(): unexpected files (-want +got):%s`, diff)
	}

	wantCalls := [][]string{{"rpm", "-qd", "python3"}}
	if diff := cmp.Diff(wantCalls, calls); diff != "" {
		t.Errorf(`ListDocs(): unexpected query (-want +got):%s`, diff)
	}
}
