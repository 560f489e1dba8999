package bundle

import "testing"

func TestShouldCopy(t *testing.T) {
	type testcase struct {
		input   string
		want    bool
		wantErr bool
	}

	for n, c := range map[string]testcase{
		"empty": {
			input: "",
			want:  false,
		},
		"python binary": {
			input: "/usr/bin/python3.9",
			want:  true,
		},
		"python malloc variant": {
			input: "/usr/bin/python3.9m",
			want:  false,
		},
		"loader": {
			input: "/lib64/ld-linux-x86-64.so.2",
			want:  false,
		},
		"usr lib64 library": {
			input: "/usr/lib64/libpython3.9.so.1.0",
			want:  true,
		},
		"bare lib": {
			input: "/lib/libssl.so.1.1",
			want:  true,
		},
		"stdlib module": {
			input: "/usr/lib64/python3.9/foo.py",
			want:  true,
		},
		"locale": {
			input: "/usr/lib64/locale/foo",
			want:  false,
		},
		"build id": {
			input: "/usr/lib/.build-id/ab/cdef0123",
			want:  false,
		},
		"binary outside lib": {
			input: "/usr/sbin/ldconfig",
			want:  false,
		},
		"etc": {
			input: "/etc/hosts",
			want:  false,
		},
		"bare usr": {
			input: "/usr",
			want:  false,
		},
		"relative": {
			input:   "relative/path",
			wantErr: true,
		},
	} {
		t.Run(n, func(t *testing.T) {
			got, err := ShouldCopy(c.input)
			if (err != nil) != c.wantErr {
				t.Fatalf(`ShouldCopy(%q): unexpected error: %v`, c.input, err)
			}
			if got != c.want {
				t.Errorf(`ShouldCopy(%q): wanted %t, got %t`, c.input, c.want, got)
			}

			// The classifier is a pure function of the path.
			again, _ := ShouldCopy(c.input)
			if again != got {
				t.Errorf(`ShouldCopy(%q): second call returned %t, first returned %t`, c.input, again, got)
			}
		})
	}
}

func TestDest(t *testing.T) {
	type testcase struct {
		input   string
		want    string
		wantErr bool
	}

	for n, c := range map[string]testcase{
		"usr lib64": {
			input: "/usr/lib64/libpython3.9.so.1.0",
			want:  "lib64/libpython3.9.so.1.0",
		},
		"usr lib": {
			input: "/usr/lib/python3.9/site-packages/foo.py",
			want:  "lib64/python3.9/site-packages/foo.py",
		},
		"lib": {
			input: "/lib/libc.so.6",
			want:  "lib64/libc.so.6",
		},
		"lib64": {
			input: "/lib64/libm.so.6",
			want:  "lib64/libm.so.6",
		},
		"unexpected root": {
			input:   "/opt/libfoo.so",
			wantErr: true,
		},
		"unexpected usr subdir": {
			input:   "/usr/share/doc/python3/README",
			wantErr: true,
		},
	} {
		t.Run(n, func(t *testing.T) {
			got, err := Dest(c.input)
			if (err != nil) != c.wantErr {
				t.Fatalf(`Dest(%q): unexpected error: %v`, c.input, err)
			}
			if got != c.want {
				t.Errorf(`Dest(%q): wanted %q, got %q`, c.input, c.want, got)
			}

			// The mapping is deterministic.
			again, _ := Dest(c.input)
			if again != got {
				t.Errorf(`Dest(%q): second call returned %q, first returned %q`, c.input, again, got)
			}
		})
	}
}
