package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/product-factory/internal/db"
)

type fakeStore struct {
	run       *db.Run
	project   *db.Project
	artifacts []db.Artifact
	approvals []db.Approval

	artifactsErr error
}

func (s *fakeStore) GetRun(_ context.Context, runID uuid.UUID) (*db.Run, error) {
	if s.run != nil && s.run.ID == runID {
		return s.run, nil
	}
	return nil, nil
}

func (s *fakeStore) GetProjectByID(_ context.Context, _ uuid.UUID) (*db.Project, error) {
	return s.project, nil
}

func (s *fakeStore) ListArtifacts(_ context.Context, _ uuid.UUID) ([]db.Artifact, error) {
	if s.artifactsErr != nil {
		return nil, s.artifactsErr
	}
	return s.artifacts, nil
}

func (s *fakeStore) ListApprovals(_ context.Context, _ uuid.UUID) ([]db.Approval, error) {
	return s.approvals, nil
}

func sampleBundleStore() *fakeStore {
	runID := uuid.New()
	projectID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	approved := true

	return &fakeStore{
		run: &db.Run{
			ID:           runID,
			ProjectID:    projectID,
			Status:       db.RunStatusCompleted,
			CurrentStage: "completed",
			TotalTokens:  420,
		},
		project: &db.Project{ID: projectID, Name: "todo-app"},
		artifacts: []db.Artifact{
			{RunID: runID, ArtifactType: db.ArtifactResearch, Name: "research.md", Content: "findings", CreatedAt: base},
			{RunID: runID, ArtifactType: db.ArtifactEpics, Name: "epics.md", Content: "epics v1", CreatedAt: base.Add(time.Minute)},
			{RunID: runID, ArtifactType: db.ArtifactEpics, Name: "epics.md", Content: "epics v2", CreatedAt: base.Add(2 * time.Minute)},
		},
		approvals: []db.Approval{
			{RunID: runID, Stage: db.ArtifactEpics, Approved: &approved, Action: db.ActionProceed},
		},
	}
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(content)
	}
	return files
}

func TestCollect(t *testing.T) {
	store := sampleBundleStore()

	bundle, err := Collect(context.Background(), store, store.run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.run.ID, bundle.Run.ID)
	assert.Equal(t, "todo-app", bundle.Project.Name)
	assert.Len(t, bundle.Artifacts, 3)
	assert.Len(t, bundle.Approvals, 1)
}

func TestCollect_UnknownRun(t *testing.T) {
	_, err := Collect(context.Background(), sampleBundleStore(), uuid.New())
	assert.ErrorContains(t, err, "run not found")
}

func TestCollect_StoreFailure(t *testing.T) {
	store := sampleBundleStore()
	store.artifactsErr = errors.New("connection reset")

	_, err := Collect(context.Background(), store, store.run.ID)
	assert.ErrorContains(t, err, "failed to list artifacts")
}

func TestWriteZip_LatestArtifactsAtTopLevel(t *testing.T) {
	store := sampleBundleStore()
	bundle, err := Collect(context.Background(), store, store.run.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteZip(&buf))
	files := readZip(t, buf.Bytes())

	// Latest version of each type at the top level.
	assert.Equal(t, "findings", files["research.md"])
	assert.Equal(t, "epics v2", files["epics.md"])

	// Every version preserved under history/.
	assert.Equal(t, "epics v1", files["history/20260301T120100-epics.md"])
	assert.Equal(t, "epics v2", files["history/20260301T120200-epics.md"])
	assert.Equal(t, "findings", files["history/20260301T120000-research.md"])

	var m struct {
		RunID         uuid.UUID `json:"run_id"`
		ProjectName   string    `json:"project_name"`
		Status        string    `json:"status"`
		TotalTokens   int       `json:"total_tokens"`
		ArtifactCount int       `json:"artifact_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(files["manifest.json"]), &m))
	assert.Equal(t, store.run.ID, m.RunID)
	assert.Equal(t, "todo-app", m.ProjectName)
	assert.Equal(t, db.RunStatusCompleted, m.Status)
	assert.Equal(t, 420, m.TotalTokens)
	assert.Equal(t, 3, m.ArtifactCount)

	var approvals []db.Approval
	require.NoError(t, json.Unmarshal([]byte(files["approvals.json"]), &approvals))
	require.Len(t, approvals, 1)
	assert.Equal(t, db.ActionProceed, approvals[0].Action)
}

func TestWriteZip_NoApprovalsFileWhenEmpty(t *testing.T) {
	store := sampleBundleStore()
	store.approvals = nil

	bundle, err := Collect(context.Background(), store, store.run.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteZip(&buf))
	files := readZip(t, buf.Bytes())

	_, exists := files["approvals.json"]
	assert.False(t, exists)
}
