package database

import (
	"context"
	"testing"

	"vfs-go/internal/vfs"
)

func TestSQLDatabase_AccessControl(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	entries := []vfs.AccessControlEntry{
		{ResourceID: "off-1", PrincipalID: "editors", Allowed: 7},
		{ResourceID: "off-1", PrincipalID: "guests", Allowed: 1, Denied: 6},
	}
	for _, ace := range entries {
		if err := db.WriteAccessControlEntry(ctx, offline(), ace); err != nil {
			t.Fatalf("WriteAccessControlEntry() error = %v", err)
		}
	}
	if err := db.WriteAccessControlEntry(ctx, offline(), vfs.AccessControlEntry{ResourceID: "off-1", PrincipalID: "editors", Allowed: 3}); err != nil {
		t.Fatalf("WriteAccessControlEntry() overwrite error = %v", err)
	}
	if err := db.WriteAccessControlEntry(ctx, vfs.OnlineProject(), vfs.AccessControlEntry{ResourceID: "on-1", PrincipalID: "stale"}); err != nil {
		t.Fatalf("WriteAccessControlEntry() online error = %v", err)
	}

	if err := db.PublishAccessControlEntries(ctx, offline(), vfs.OnlineProject(), "off-1", "on-1"); err != nil {
		t.Fatalf("PublishAccessControlEntries() error = %v", err)
	}
	got, err := db.ReadAccessControlEntries(ctx, vfs.OnlineProject(), "on-1")
	if err != nil {
		t.Fatalf("ReadAccessControlEntries() error = %v", err)
	}
	if len(got) != 2 || got[0].PrincipalID != "editors" || got[0].Allowed != 3 || got[1].Denied != 6 {
		t.Errorf("online entries = %+v", got)
	}

	if err := db.RemoveAllAccessControlEntries(ctx, vfs.OnlineProject(), "on-1"); err != nil {
		t.Fatalf("RemoveAllAccessControlEntries() error = %v", err)
	}
	got, err = db.ReadAccessControlEntries(ctx, vfs.OnlineProject(), "on-1")
	if err != nil {
		t.Fatalf("ReadAccessControlEntries() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("entries after removal = %+v", got)
	}
}
