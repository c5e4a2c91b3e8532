package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-crm-api/internal/models"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
	"github.com/noah-isme/student-crm-api/pkg/export"
	"github.com/noah-isme/student-crm-api/pkg/jobs"
	"github.com/noah-isme/student-crm-api/pkg/storage"
)

type rosterStub struct {
	records []models.StudentRecord
	err     error
}

func (s rosterStub) List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.records, len(s.records), nil
}

func newExportServiceForTest(t *testing.T, source rosterSource) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(source, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter()), store
}

func rosterFixture() []models.StudentRecord {
	lastActive := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []models.StudentRecord{
		{ID: "rec-1", Name: "Aarav Patel", Email: "aarav@example.com", Status: models.StatusExploring, Grade: "11", Country: "India", LastActive: &lastActive},
		{ID: "rec-2", Name: "Mina Okafor", Email: "mina@example.com", Status: models.StatusEssay, Grade: "12", Country: "Nigeria"},
	}
}

func TestExportServiceEnqueueRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t, rosterStub{})

	_, err := svc.Enqueue(context.Background(), models.ExportFormat("xlsx"), models.RecordFilter{}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceEnqueueRequiresStartedQueue(t *testing.T) {
	svc, _ := newExportServiceForTest(t, rosterStub{})

	_, err := svc.Enqueue(context.Background(), models.ExportFormatCSV, models.RecordFilter{}, "admin")
	require.Error(t, err)

	_, err = svc.Job("anything")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCSVLifecycle(t *testing.T) {
	svc, store := newExportServiceForTest(t, rosterStub{records: rosterFixture()})
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.Enqueue(context.Background(), models.ExportFormatCSV, models.RecordFilter{}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		current, err := svc.Job(job.ID)
		return err == nil && current.Status == models.ExportStatusFinished
	}, 5*time.Second, 20*time.Millisecond)

	finished, err := svc.Job(job.ID)
	require.NoError(t, err)
	require.NotNil(t, finished.ResultURL)
	assert.Contains(t, *finished.ResultURL, "/api/v1/exports/download/")
	require.NotNil(t, finished.ExpiresAt)

	token := (*finished.ResultURL)[len("/api/v1/exports/download/"):]
	jobID, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)
	assert.Equal(t, job.ID, jobID)

	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServicePDFLifecycle(t *testing.T) {
	svc, store := newExportServiceForTest(t, rosterStub{records: rosterFixture()})
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.Enqueue(context.Background(), models.ExportFormatPDF, models.RecordFilter{}, "admin")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := svc.Job(job.ID)
		return err == nil && current.Status == models.ExportStatusFinished
	}, 5*time.Second, 20*time.Millisecond)

	finished, err := svc.Job(job.ID)
	require.NoError(t, err)
	require.NotNil(t, finished.ResultURL)

	token := (*finished.ResultURL)[len("/api/v1/exports/download/"):]
	_, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)

	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

// Job state is read concurrently with worker writes; every read must see a
// coherent copy. Run with -race.
func TestExportServiceJobReadsDuringProcessing(t *testing.T) {
	svc, _ := newExportServiceForTest(t, rosterStub{records: rosterFixture()})
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.Enqueue(context.Background(), models.ExportFormatCSV, models.RecordFilter{}, "admin")
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		current, err := svc.Job(job.ID)
		require.NoError(t, err)
		if current.Status == models.ExportStatusFinished {
			require.NotNil(t, current.ResultURL)
			require.NotNil(t, current.ExpiresAt)
			break
		}
		if current.ResultURL != nil {
			assert.Equal(t, models.ExportStatusFinished, current.Status)
		}
		require.True(t, time.Now().Before(deadline), "export did not finish in time")
	}
}

func TestExportServiceFailureMarksJob(t *testing.T) {
	svc, _ := newExportServiceForTest(t, rosterStub{err: assert.AnError})
	svc.mu.Lock()
	svc.jobsByID["job-1"] = &models.ExportJob{ID: "job-1", Format: models.ExportFormatCSV, Status: models.ExportStatusQueued}
	svc.mu.Unlock()

	err := svc.process(context.Background(), jobs.Job{ID: "job-1", Payload: "job-1"})
	require.Error(t, err)

	failed, err := svc.Job("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
}

func TestExportServiceDatasetRows(t *testing.T) {
	svc, _ := newExportServiceForTest(t, rosterStub{records: rosterFixture()})

	dataset, err := svc.buildRosterDataset(context.Background(), models.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Email", "Status", "Grade", "Country", "Phone", "Last active"}, dataset.Headers)
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "Aarav Patel", dataset.Rows[0]["Name"])
	assert.Equal(t, "2025-03-01T10:00:00Z", dataset.Rows[0]["Last active"])
	assert.Equal(t, "", dataset.Rows[1]["Last active"])
}
