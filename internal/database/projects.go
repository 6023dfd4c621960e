package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/vfs"
)

type projectRow struct {
	ID          int    `db:"project_id"`
	Name        string `db:"project_name"`
	Description string `db:"project_description"`
	Type        int    `db:"project_type"`
	DateCreated int64  `db:"date_created"`
}

// CreateProject stores p under the next free id. Resource paths are kept
// in the order given.
func (s *SQLDatabase) CreateProject(ctx context.Context, p vfs.Project) (*vfs.Project, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("creating project: name is required")
	}
	err := s.withTx(ctx, "creating project "+p.Name, func(tx *sqlx.Tx) error {
		var taken int
		if err := sqlx.GetContext(ctx, tx, &taken, tx.Rebind("SELECT COUNT(*) FROM projects WHERE project_name = ?"), p.Name); err != nil {
			return storeErr("checking project name", err)
		}
		if taken > 0 {
			return &vfs.AlreadyExistsError{Path: "project " + p.Name}
		}

		var maxID int
		if err := sqlx.GetContext(ctx, tx, &maxID, "SELECT COALESCE(MAX(project_id), 0) FROM projects"); err != nil {
			return storeErr("reading max project id", err)
		}
		p.ID = max(maxID, vfs.OnlineProjectID) + 1

		if _, err := exec(ctx, tx, "creating project "+p.Name,
			"INSERT INTO projects (project_id, project_name, project_description, project_type, date_created) VALUES (?, ?, ?, ?, ?)",
			p.ID, p.Name, p.Description, int(p.Type), millis(p.CreatedAt)); err != nil {
			return err
		}
		for _, path := range p.ResourcePaths {
			if _, err := exec(ctx, tx, "adding project resource "+path,
				"INSERT INTO project_resources (project_id, resource_path) VALUES (?, ?)", p.ID, path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project", p.Name, "id", p.ID)
	return &p, nil
}

func (s *SQLDatabase) readProject(ctx context.Context, key, where string, args ...any) (*vfs.Project, error) {
	var row projectRow
	query := "SELECT project_id, project_name, project_description, project_type, date_created FROM projects WHERE " + where
	err := sqlx.GetContext(ctx, s.db, &row, s.db.Rebind(query), args...)
	if isNoRows(err) {
		return nil, &vfs.NotFoundError{Kind: "project", Key: key}
	}
	if err != nil {
		return nil, storeErr("reading project "+key, err)
	}
	return s.projectFromRow(ctx, row)
}

func (s *SQLDatabase) projectFromRow(ctx context.Context, row projectRow) (*vfs.Project, error) {
	var paths []string
	if err := sqlx.SelectContext(ctx, s.db, &paths,
		s.db.Rebind("SELECT resource_path FROM project_resources WHERE project_id = ? ORDER BY resource_path"), row.ID); err != nil {
		return nil, storeErr("reading resources of project "+row.Name, err)
	}
	return &vfs.Project{
		ID:            row.ID,
		Name:          row.Name,
		Description:   row.Description,
		Type:          vfs.ProjectType(row.Type),
		ResourcePaths: paths,
		CreatedAt:     fromMillis(row.DateCreated),
	}, nil
}

func (s *SQLDatabase) ReadProject(ctx context.Context, id int) (*vfs.Project, error) {
	return s.readProject(ctx, fmt.Sprint(id), "project_id = ?", id)
}

func (s *SQLDatabase) ReadProjectByName(ctx context.Context, name string) (*vfs.Project, error) {
	return s.readProject(ctx, name, "project_name = ?", name)
}

func (s *SQLDatabase) ReadProjects(ctx context.Context) ([]*vfs.Project, error) {
	var rows []projectRow
	if err := sqlx.SelectContext(ctx, s.db, &rows,
		"SELECT project_id, project_name, project_description, project_type, date_created FROM projects ORDER BY project_id"); err != nil {
		return nil, storeErr("reading projects", err)
	}
	projects := make([]*vfs.Project, 0, len(rows))
	for _, row := range rows {
		p, err := s.projectFromRow(ctx, row)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}
