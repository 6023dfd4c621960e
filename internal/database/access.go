package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/vfs"
)

type accessRow struct {
	ResourceID  string `db:"resource_id"`
	PrincipalID string `db:"principal_id"`
	Allowed     int    `db:"access_allowed"`
	Denied      int    `db:"access_denied"`
	Flags       int    `db:"access_flags"`
}

func readAccess(ctx context.Context, q sqlx.ExtContext, t tables, resourceID string) ([]vfs.AccessControlEntry, error) {
	var rows []accessRow
	query := "SELECT resource_id, principal_id, access_allowed, access_denied, access_flags FROM " + t.access +
		" WHERE resource_id = ? ORDER BY principal_id"
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), resourceID); err != nil {
		return nil, storeErr("reading access control entries of "+resourceID, err)
	}
	entries := make([]vfs.AccessControlEntry, len(rows))
	for i, row := range rows {
		entries[i] = vfs.AccessControlEntry{
			ResourceID:  row.ResourceID,
			PrincipalID: row.PrincipalID,
			Allowed:     row.Allowed,
			Denied:      row.Denied,
			Flags:       row.Flags,
		}
	}
	return entries, nil
}

func writeAccess(ctx context.Context, q sqlx.ExtContext, t tables, ace vfs.AccessControlEntry) error {
	where := " WHERE resource_id = ? AND principal_id = ?"
	n, err := exec(ctx, q, "updating access control entry",
		"UPDATE "+t.access+" SET access_allowed = ?, access_denied = ?, access_flags = ?"+where,
		ace.Allowed, ace.Denied, ace.Flags, ace.ResourceID, ace.PrincipalID)
	if err != nil || n > 0 {
		return err
	}
	_, err = exec(ctx, q, "inserting access control entry",
		"INSERT INTO "+t.access+" (resource_id, principal_id, access_allowed, access_denied, access_flags) VALUES (?, ?, ?, ?, ?)",
		ace.ResourceID, ace.PrincipalID, ace.Allowed, ace.Denied, ace.Flags)
	return err
}

func (s *SQLDatabase) WriteAccessControlEntry(ctx context.Context, project *vfs.Project, ace vfs.AccessControlEntry) error {
	return writeAccess(ctx, s.db, tablesFor(project), ace)
}

func (s *SQLDatabase) ReadAccessControlEntries(ctx context.Context, project *vfs.Project, resourceID string) ([]vfs.AccessControlEntry, error) {
	return readAccess(ctx, s.db, tablesFor(project), resourceID)
}

func (s *SQLDatabase) RemoveAllAccessControlEntries(ctx context.Context, project *vfs.Project, resourceID string) error {
	_, err := exec(ctx, s.db, "removing access control entries of "+resourceID,
		"DELETE FROM "+tablesFor(project).access+" WHERE resource_id = ?", resourceID)
	return err
}

// PublishAccessControlEntries replaces the online entries of
// onlineResourceID with the offline entries of offlineResourceID.
func (s *SQLDatabase) PublishAccessControlEntries(ctx context.Context, offline, online *vfs.Project, offlineResourceID, onlineResourceID string) error {
	return s.withTx(ctx, "publishing access control entries of "+offlineResourceID, func(tx *sqlx.Tx) error {
		entries, err := readAccess(ctx, tx, tablesFor(offline), offlineResourceID)
		if err != nil {
			return err
		}
		onlineTables := tablesFor(online)
		if _, err := exec(ctx, tx, "clearing online access control entries",
			"DELETE FROM "+onlineTables.access+" WHERE resource_id = ?", onlineResourceID); err != nil {
			return err
		}
		for _, ace := range entries {
			ace.ResourceID = onlineResourceID
			if err := writeAccess(ctx, tx, onlineTables, ace); err != nil {
				return err
			}
		}
		return nil
	})
}
