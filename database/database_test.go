package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"setlistify/auth"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "setlistify.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := db.Sessions("sid-1")

	pair, err := store.Load(ctx)
	if err != nil || pair != nil {
		t.Fatalf("Load() on empty session = %+v, %v", pair, err)
	}

	expires := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	if err := store.Save(ctx, auth.TokenPair{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	pair, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pair.AccessToken != "a1" || pair.RefreshToken != "r1" || !pair.ExpiresAt.Equal(expires) {
		t.Errorf("Load() = %+v", pair)
	}

	// a refresh that did not rotate the refresh token keeps the old one
	if err := store.Save(ctx, auth.TokenPair{AccessToken: "a2", ExpiresAt: expires}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	pair, _ = store.Load(ctx)
	if pair.AccessToken != "a2" || pair.RefreshToken != "r1" {
		t.Errorf("after refresh Load() = %+v", pair)
	}

	if !db.HasSession(ctx, "sid-1") || db.HasSession(ctx, "sid-2") {
		t.Error("HasSession() disagrees with stored rows")
	}
	if other, _ := db.Sessions("sid-2").Load(ctx); other != nil {
		t.Errorf("sessions leaked across ids: %+v", other)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if pair, _ := store.Load(ctx); pair != nil {
		t.Errorf("Load() after Clear = %+v", pair)
	}
	if db.HasSession(ctx, "sid-1") {
		t.Error("HasSession() true after Clear")
	}
}

func TestPurgeSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.Sessions("old").Save(ctx, auth.TokenPair{AccessToken: "a"})

	n, err := db.PurgeSessions(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions; want 1", n)
	}
}

func TestPlaylistHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	records := []PlaylistRecord{
		{OwnerID: "u1", PlaylistID: "p1", Name: "Budokan 1978", TrackCount: 12, Mode: "user", CreatedAt: base},
		{OwnerID: "u1", PlaylistID: "p2", Name: "Fuji Rock", TrackCount: 20, Mode: "user", CreatedAt: base.Add(time.Hour)},
		{OwnerID: "u2", PlaylistID: "p3", Name: "Other", TrackCount: 1, Mode: "service", CreatedAt: base},
	}
	for _, r := range records {
		if err := db.RecordPlaylist(ctx, r); err != nil {
			t.Fatalf("RecordPlaylist() error = %v", err)
		}
	}

	got, err := db.GetPlaylists(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetPlaylists() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
	if got[0].PlaylistID != "p2" || got[1].PlaylistID != "p1" {
		t.Errorf("order = %s, %s; want newest first", got[0].PlaylistID, got[1].PlaylistID)
	}
	if !got[1].CreatedAt.Equal(base) || got[1].TrackCount != 12 {
		t.Errorf("record = %+v", got[1])
	}

	none, err := db.GetPlaylists(ctx, "nobody", 0)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("GetPlaylists(nobody) = %v, %v; want empty slice", none, err)
	}
}
