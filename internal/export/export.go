// Package export assembles a run's artifacts and decision history into a
// downloadable zip bundle.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/product-factory/internal/db"
)

// Store is the persistence surface the exporter reads from.
type Store interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	GetProjectByID(ctx context.Context, projectID uuid.UUID) (*db.Project, error)
	ListArtifacts(ctx context.Context, runID uuid.UUID) ([]db.Artifact, error)
	ListApprovals(ctx context.Context, runID uuid.UUID) ([]db.Approval, error)
}

// Bundle holds everything exported for one run.
type Bundle struct {
	Run       *db.Run
	Project   *db.Project
	Artifacts []db.Artifact
	Approvals []db.Approval
}

// Collect loads the run, its project, and the full artifact and approval
// history.
func Collect(ctx context.Context, store Store, runID uuid.UUID) (*Bundle, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	bundle := &Bundle{Run: run}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		project, err := store.GetProjectByID(gctx, run.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}
		bundle.Project = project
		return nil
	})
	g.Go(func() error {
		artifacts, err := store.ListArtifacts(gctx, runID)
		if err != nil {
			return fmt.Errorf("failed to list artifacts: %w", err)
		}
		bundle.Artifacts = artifacts
		return nil
	})
	g.Go(func() error {
		approvals, err := store.ListApprovals(gctx, runID)
		if err != nil {
			return fmt.Errorf("failed to list approvals: %w", err)
		}
		bundle.Approvals = approvals
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return bundle, nil
}

// manifest is the machine-readable summary written into the bundle.
type manifest struct {
	RunID         uuid.UUID `json:"run_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	ProjectName   string    `json:"project_name,omitempty"`
	Status        string    `json:"status"`
	CurrentStage  string    `json:"current_stage"`
	TotalTokens   int       `json:"total_tokens"`
	ArtifactCount int       `json:"artifact_count"`
	ExportedAt    time.Time `json:"exported_at"`
}

// WriteZip writes the bundle as a zip archive. The latest artifact of each
// type appears at the top level; every version is kept under history/.
func (b *Bundle) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)

	m := manifest{
		RunID:         b.Run.ID,
		ProjectID:     b.Run.ProjectID,
		Status:        b.Run.Status,
		CurrentStage:  b.Run.CurrentStage,
		TotalTokens:   b.Run.TotalTokens,
		ArtifactCount: len(b.Artifacts),
		ExportedAt:    time.Now().UTC(),
	}
	if b.Project != nil {
		m.ProjectName = b.Project.Name
	}
	if err := writeJSON(zw, "manifest.json", m); err != nil {
		return err
	}
	if len(b.Approvals) > 0 {
		if err := writeJSON(zw, "approvals.json", b.Approvals); err != nil {
			return err
		}
	}

	// Artifacts are ordered by creation time, so the last of each type wins.
	latest := make(map[string]*db.Artifact)
	for i := range b.Artifacts {
		a := &b.Artifacts[i]
		latest[a.ArtifactType] = a

		name := fmt.Sprintf("history/%s-%s", a.CreatedAt.UTC().Format("20060102T150405"), a.Name)
		if err := writeFile(zw, name, a.Content); err != nil {
			return err
		}
	}
	for _, a := range latest {
		if err := writeFile(zw, a.Name, a.Content); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip: %w", err)
	}
	return nil
}

func writeFile(zw *zip.Writer, name, content string) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return writeFile(zw, name, string(data))
}
