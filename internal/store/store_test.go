package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	logx "notifyd/pkg/logx"
)

func openDrivers(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	open := func(cfg Config) func() Store {
		return func() Store {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open(%s): %v", cfg.Driver, err)
			}
			return st
		}
	}
	return map[string]func() Store{
		"memory": open(Config{Driver: "memory"}),
		"file":   open(Config{Driver: "file", Path: filepath.Join(dir, "props.json")}),
		"sqlite": open(Config{Driver: "sqlite", Path: filepath.Join(dir, "props.db")}),
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range openDrivers(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			st := open()
			t.Cleanup(func() { _ = st.Close() })

			if err := st.SetMany(map[string]string{
				"n.ev1":             "IncomingCall",
				"n.ev1.active":      "true",
				"n.ev1.act1":        "SoundAction",
				"n.ev1.act1.loop":   "2000",
				"n.ev2":             "Dialing",
				"n_x":               "unrelated",
				"n.ev1_lookalike.y": "z",
			}); err != nil {
				t.Fatalf("SetMany: %v", err)
			}
			if err := st.Set("n.ev1.act1.enabled", "false"); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := st.Keys("n", true)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			want := []string{"n.ev1", "n.ev2"}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("exact Keys = %v, want %v", got, want)
			}

			got, _ = st.Keys("n.ev1", false)
			want = []string{"n.ev1.act1", "n.ev1.act1.enabled", "n.ev1.act1.loop", "n.ev1.active"}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("subtree Keys = %v, want %v", got, want)
			}

			if v, ok := GetString(st, "n.ev1"); !ok || v != "IncomingCall" {
				t.Fatalf("GetString = %q %v", v, ok)
			}
			if GetBool(st, "n.ev1.act1.enabled", true) {
				t.Fatal("GetBool should read false")
			}
			if GetBool(st, "n.ev1.missing", true) != true {
				t.Fatal("GetBool default")
			}
			if GetInt(st, "n.ev1.act1.loop", -1) != 2000 || GetLong(st, "n.ev1", -1) != -1 {
				t.Fatal("numeric getters")
			}
			if !Has(st, "n.ev1.active") || Has(st, "n.nope") {
				t.Fatal("Has")
			}

			if err := st.RemovePrefix("n.ev1"); err != nil {
				t.Fatalf("RemovePrefix: %v", err)
			}
			if Has(st, "n.ev1") || Has(st, "n.ev1.act1.loop") {
				t.Fatal("subtree not removed")
			}
			if !Has(st, "n.ev1_lookalike.y") || !Has(st, "n.ev2") {
				t.Fatal("RemovePrefix removed siblings")
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Set("a.b", "1")
	_ = st.SetMany(map[string]string{"a.c": "2", "a.d": "3"})
	_ = st.RemovePrefix("a.d")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Set("a.e", "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after close = %v, want ErrClosed", err)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, _ := st.Keys("a", true)
	if !reflect.DeepEqual(got, []string{"a.b", "a.c"}) {
		t.Fatalf("Keys after reopen = %v", got)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.db")
	cfg := Config{Driver: "sqlite", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Set("x.y", "%literal_")
	_ = st.Close()

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if v, _ := GetString(st, "x.y"); v != "%literal_" {
		t.Fatalf("value = %q", v)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
}

func TestMatchKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key, prefix string
		exact, want bool
	}{
		{"a.b", "a", true, true},
		{"a.b.c", "a", true, false},
		{"a.b.c", "a", false, true},
		{"ab.c", "a", false, false},
		{"a", "a", false, false},
		{"top", "", true, true},
	}
	for _, tt := range tests {
		if got := matchKey(tt.key, tt.prefix, tt.exact); got != tt.want {
			t.Errorf("matchKey(%q,%q,%v) = %v, want %v", tt.key, tt.prefix, tt.exact, got, tt.want)
		}
	}
}
