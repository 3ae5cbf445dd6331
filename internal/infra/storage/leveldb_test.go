package storage

import (
	"path/filepath"
	"testing"

	"liquidity_go/internal/domain"
)

func TestLevelDBPoolStore(t *testing.T) {
	runPoolStoreSuite(t, func(t *testing.T) domain.PoolStore {
		db, err := OpenLevelDB(filepath.Join(t.TempDir(), "pool"))
		if err != nil {
			t.Fatalf("open leveldb: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		return db.PoolStore("pool-1")
	})
}

func TestLevelDBStatePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pool")
	ctx := t.Context()

	db, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	store := db.PoolStore("pool-1")
	if err := store.Init(ctx, 3, testOrderbook()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.Update(ctx, func(st domain.PoolState) error {
		return st.Push(obsAt(7))
	}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer db.Close()

	err = db.PoolStore("pool-1").View(ctx, func(st domain.PoolState) error {
		last, err := st.ReadLast()
		if err != nil {
			return err
		}
		if last == nil || last.Timestamp != 7 {
			t.Errorf("expected last ts 7 after reopen, got %+v", last)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestOpenLevelDBRequiresPath(t *testing.T) {
	if _, err := OpenLevelDB("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
