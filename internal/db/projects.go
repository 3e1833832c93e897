package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const projectColumns = `id, owner_id, name, description, product_request, documents, created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	var documentsJSON []byte
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description,
		&p.ProductRequest, &documentsJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if documentsJSON != nil {
		_ = json.Unmarshal(documentsJSON, &p.Documents)
	}
	return &p, nil
}

// CreateProject creates a project owned by ownerID.
func (db *DB) CreateProject(ctx context.Context, ownerID uuid.UUID, name, description, productRequest string, documents map[string]any) (*Project, error) {
	var documentsJSON []byte
	if documents != nil {
		var err error
		documentsJSON, err = json.Marshal(documents)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}
	}

	p, err := scanProject(db.pool.QueryRow(ctx,
		`INSERT INTO projects (owner_id, name, description, product_request, documents)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+projectColumns,
		ownerID, name, description, productRequest, documentsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProjectByID retrieves a project without owner scoping. Used by the
// orchestrator, which is run-scoped rather than user-scoped.
func (db *DB) GetProjectByID(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	p, err := scanProject(db.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project only if it belongs to ownerID.
// Returns (nil, nil) when missing or owned by someone else.
func (db *DB) GetProject(ctx context.Context, projectID, ownerID uuid.UUID) (*Project, error) {
	p, err := scanProject(db.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 AND owner_id = $2`,
		projectID, ownerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects retrieves all projects owned by ownerID, newest first.
func (db *DB) ListProjects(ctx context.Context, ownerID uuid.UUID) ([]Project, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProject updates mutable project fields, owner-scoped.
func (db *DB) UpdateProject(ctx context.Context, projectID, ownerID uuid.UUID, name, description, productRequest string) (*Project, error) {
	p, err := scanProject(db.pool.QueryRow(ctx,
		`UPDATE projects
		 SET name = $1, description = $2, product_request = $3, updated_at = NOW()
		 WHERE id = $4 AND owner_id = $5
		 RETURNING `+projectColumns,
		name, description, productRequest, projectID, ownerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// DeleteProject deletes a project and, via cascade, its runs, artifacts, and
// approvals.
func (db *DB) DeleteProject(ctx context.Context, projectID, ownerID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM projects WHERE id = $1 AND owner_id = $2`,
		projectID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project not found: %s", projectID)
	}
	return nil
}
