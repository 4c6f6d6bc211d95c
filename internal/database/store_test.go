package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"B24Relay/entity"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_PortalAuth(t *testing.T) {
	ctx := context.Background()
	expires := time.UnixMilli(1_800_000_000_000)
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.GetPortalAuth(ctx, "acme.bitrix24.com")
			if err != nil || got != nil {
				t.Fatalf("unknown portal: %v, %v", got, err)
			}

			auth := &entity.PortalAuth{
				PortalDomain:   "Acme.Bitrix24.com",
				ClientEndpoint: "https://acme.bitrix24.com/rest/",
				AccessToken:    "a1",
				RefreshToken:   "r1",
				ExpiresAt:      expires,
			}
			if err = store.SavePortalAuth(ctx, auth); err != nil {
				t.Fatal(err)
			}
			auth.AccessToken = "a2"
			if err = store.SavePortalAuth(ctx, auth); err != nil {
				t.Fatal(err)
			}

			got, err = store.GetPortalAuth(ctx, "acme.bitrix24.com")
			if err != nil || got == nil {
				t.Fatalf("saved portal: %v, %v", got, err)
			}
			if got.AccessToken != "a2" || got.RefreshToken != "r1" {
				t.Errorf("tokens = %q/%q", got.AccessToken, got.RefreshToken)
			}
			if !got.ExpiresAt.Equal(expires) {
				t.Errorf("expires = %v, want %v", got.ExpiresAt, expires)
			}

			if err = store.DeletePortalAuth(ctx, "acme.bitrix24.com"); err != nil {
				t.Fatal(err)
			}
			if got, _ = store.GetPortalAuth(ctx, "acme.bitrix24.com"); got != nil {
				t.Error("portal not deleted")
			}
		})
	}
}

func TestStore_ChatMapAndSettings(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.SaveChatMap(ctx, entity.ChatMap{PortalDomain: "acme", ExternalChatID: "c1", Phone: "5511"}); err != nil {
				t.Fatal(err)
			}
			cm, err := store.GetChatMap(ctx, "acme", "c1")
			if err != nil || cm == nil || cm.Phone != "5511" {
				t.Fatalf("chat map = %+v, %v", cm, err)
			}
			if cm, _ = store.GetChatMap(ctx, "acme", "c2"); cm != nil {
				t.Error("unknown chat must be nil")
			}

			if st, _ := store.GetSettings(ctx); st != nil {
				t.Errorf("settings before save = %+v", st)
			}
			want := entity.Settings{EvolutionURL: "http://gw", EvolutionToken: "t", AutoReconnect: true, LogLevel: "debug", MaxRetries: 5}
			if err = store.SaveSettings(ctx, want); err != nil {
				t.Fatal(err)
			}
			st, err := store.GetSettings(ctx)
			if err != nil || st == nil || *st != want {
				t.Errorf("settings = %+v, %v", st, err)
			}
		})
	}
}

func TestStore_Logs(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			entries := []entity.LogEntry{
				{ID: "1", Level: entity.LevelInfo, Source: entity.SourceWhatsApp, Message: "a", CreatedAt: base},
				{ID: "2", Level: entity.LevelError, Source: entity.SourceBitrix, Message: "b", CreatedAt: base.Add(time.Second)},
				{ID: "3", Level: entity.LevelInfo, Source: entity.SourceBitrix, Message: "c", CreatedAt: base.Add(2 * time.Second)},
			}
			for _, e := range entries {
				if err := store.AddLog(ctx, e); err != nil {
					t.Fatal(err)
				}
			}

			all, err := store.ListLogs(ctx, entity.LogFilter{Level: "all", Source: "all"})
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 || all[0].ID != "3" {
				t.Fatalf("newest first expected, got %+v", all)
			}

			infos, _ := store.ListLogs(ctx, entity.LogFilter{Level: entity.LevelInfo})
			if len(infos) != 2 {
				t.Errorf("level filter: %d entries", len(infos))
			}
			b24, _ := store.ListLogs(ctx, entity.LogFilter{Source: entity.SourceBitrix, Limit: 1})
			if len(b24) != 1 || b24[0].ID != "3" {
				t.Errorf("source filter with limit: %+v", b24)
			}
		})
	}
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC)
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			records := []entity.RelayRecord{
				{Direction: entity.DirectionToBitrix, Status: entity.RelaySent, CreatedAt: now.Add(-30 * time.Hour)},
				{Direction: entity.DirectionToBitrix, Status: entity.RelaySent, CreatedAt: now.Add(-time.Hour)},
				{Direction: entity.DirectionToWhatsApp, Status: entity.RelayFailed, CreatedAt: now.Add(-time.Minute)},
				{Direction: entity.DirectionToWhatsApp, Status: entity.RelaySkipped, CreatedAt: now},
			}
			for _, r := range records {
				if err := store.AddRelayRecord(ctx, r); err != nil {
					t.Fatal(err)
				}
			}
			stats, err := store.Stats(ctx, now)
			if err != nil {
				t.Fatal(err)
			}
			if stats.Total != 4 || stats.Today != 3 || stats.Sent != 2 || stats.Failed != 1 || stats.Skipped != 1 {
				t.Errorf("stats = %+v", stats)
			}
			if stats.LastSync == nil || !stats.LastSync.Equal(now.Add(-time.Hour)) {
				t.Errorf("last sync = %v", stats.LastSync)
			}
		})
	}
}

func TestStats_Empty(t *testing.T) {
	for name, store := range backends(t) {
		stats, err := store.Stats(context.Background(), time.Now())
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if stats.Total != 0 || stats.LastSync != nil {
			t.Errorf("%s: stats = %+v", name, stats)
		}
	}
}
