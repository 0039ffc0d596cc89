package storage

import (
	"context"
	"testing"

	"blastbot/pkg/logx"
)

type testDoc struct {
	Enabled bool   `json:"enabled"`
	Note    string `json:"note"`
}

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileStoreRoundtrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	var missing testDoc
	ok, err := st.LoadDoc(ctx, 42, "joins_settings", &missing)
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing doc")
	}

	in := testDoc{Enabled: true, Note: "hello"}
	if err := st.SaveDoc(ctx, 42, "joins_settings", in); err != nil {
		t.Fatalf("SaveDoc: %v", err)
	}

	var out testDoc
	ok, err = st.LoadDoc(ctx, 42, "joins_settings", &out)
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	if !ok || out != in {
		t.Fatalf("roundtrip mismatch: ok=%v got=%+v want=%+v", ok, out, in)
	}
}

func TestFileStoreUsers(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{7, 3, 11} {
		if err := st.SaveDoc(ctx, id, "broadcast_config", testDoc{}); err != nil {
			t.Fatalf("SaveDoc(%d): %v", id, err)
		}
	}

	ids, err := st.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	want := []int64{3, 7, 11}
	if len(ids) != len(want) {
		t.Fatalf("Users = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Users = %v, want %v", ids, want)
		}
	}
}

func TestFileStoreRejectsBadKind(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if err := st.SaveDoc(context.Background(), 1, "../escape", testDoc{}); err == nil {
		t.Fatal("expected error for path-traversal kind")
	}
}
