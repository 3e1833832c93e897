package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppendArtifact inserts a new artifact row. Artifacts are never updated or
// overwritten; a regenerated stage appends a second row of the same type.
func (db *DB) AppendArtifact(ctx context.Context, runID uuid.UUID, artifactType, name, content string, metadata map[string]any) (*Artifact, error) {
	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifact metadata: %w", err)
		}
	}

	var a Artifact
	err := db.pool.QueryRow(ctx,
		`INSERT INTO artifacts (run_id, artifact_type, name, content, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, run_id, artifact_type, name, content, metadata, created_at`,
		runID, artifactType, name, content, metadataJSON,
	).Scan(&a.ID, &a.RunID, &a.ArtifactType, &a.Name, &a.Content, &metadataJSON, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append artifact %s: %w", artifactType, err)
	}
	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &a.Metadata)
	}
	return &a, nil
}

// LatestArtifactContents returns the most recent content per artifact type
// for a run. Used to rebuild in-memory pipeline state on resume.
func (db *DB) LatestArtifactContents(ctx context.Context, runID uuid.UUID) (map[string]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT ON (artifact_type) artifact_type, content
		 FROM artifacts
		 WHERE run_id = $1
		 ORDER BY artifact_type, created_at DESC`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest artifacts: %w", err)
	}
	defer rows.Close()

	contents := make(map[string]string)
	for rows.Next() {
		var artifactType, content string
		if err := rows.Scan(&artifactType, &content); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		contents[artifactType] = content
	}
	return contents, rows.Err()
}

// LatestArtifactByType returns the newest artifact of the given type, or
// (nil, nil) if none exists.
func (db *DB) LatestArtifactByType(ctx context.Context, runID uuid.UUID, artifactType string) (*Artifact, error) {
	var a Artifact
	var metadataJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, artifact_type, name, content, metadata, created_at
		 FROM artifacts
		 WHERE run_id = $1 AND artifact_type = $2
		 ORDER BY created_at DESC LIMIT 1`,
		runID, artifactType,
	).Scan(&a.ID, &a.RunID, &a.ArtifactType, &a.Name, &a.Content, &metadataJSON, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", artifactType, err)
	}
	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &a.Metadata)
	}
	return &a, nil
}

// ListArtifacts returns every artifact for a run ordered by creation time,
// including regeneration history.
func (db *DB) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]Artifact, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, artifact_type, name, content, metadata, created_at
		 FROM artifacts
		 WHERE run_id = $1
		 ORDER BY created_at`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		var metadataJSON []byte
		if err := rows.Scan(&a.ID, &a.RunID, &a.ArtifactType, &a.Name, &a.Content, &metadataJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if metadataJSON != nil {
			_ = json.Unmarshal(metadataJSON, &a.Metadata)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// CountArtifactsByType returns the number of artifacts of a type under a run.
// The orchestrator derives regeneration counters from this, so the counter
// survives process restarts.
func (db *DB) CountArtifactsByType(ctx context.Context, runID uuid.UUID, artifactType string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM artifacts WHERE run_id = $1 AND artifact_type = $2`,
		runID, artifactType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}
	return count, nil
}
