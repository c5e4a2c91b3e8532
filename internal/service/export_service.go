package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/student-crm-api/internal/models"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
	"github.com/noah-isme/student-crm-api/pkg/export"
	"github.com/noah-isme/student-crm-api/pkg/jobs"
	"github.com/noah-isme/student-crm-api/pkg/storage"
)

type rosterSource interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes roster export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	Workers    int
	MaxRetries int
}

const exportPageSize = 100

// ExportService renders roster exports in the background. Job state lives in
// memory only; a restart forgets pending jobs while previously signed download
// URLs stay valid until their tokens expire.
type ExportService struct {
	records rosterSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	queue   *jobs.Queue
	logger  *zap.Logger
	cfg     ExportConfig

	mu       sync.RWMutex
	jobsByID map[string]*models.ExportJob
}

// NewExportService constructs an ExportService with its worker queue. Call
// Start before enqueueing.
func NewExportService(records rosterSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	s := &ExportService{
		records:  records,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
		jobsByID: make(map[string]*models.ExportJob),
	}
	s.queue = jobs.NewQueue("roster-export", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Enqueue registers a roster export job and schedules it for processing.
func (s *ExportService) Enqueue(ctx context.Context, format models.ExportFormat, filter models.RecordFilter, createdBy string) (*models.ExportJob, error) {
	if format != models.ExportFormatCSV && format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		Format:    format,
		Filter:    filter,
		Status:    models.ExportStatusQueued,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	// Snapshot under the lock: once the job is queued a worker may already
	// be mutating it.
	s.mu.Lock()
	s.jobsByID[job.ID] = job
	snapshot := snapshotJob(job)
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "roster-export", Payload: job.ID}); err != nil {
		s.mu.Lock()
		delete(s.jobsByID, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule export")
	}

	return snapshot, nil
}

// Job returns the current state of an export job. The copy is taken while
// holding the lock so callers never observe a torn write from a worker.
func (s *ExportService) Job(id string) (*models.ExportJob, error) {
	s.mu.RLock()
	job, ok := s.jobsByID[id]
	var snapshot *models.ExportJob
	if ok {
		snapshot = snapshotJob(job)
	}
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return snapshot, nil
}

// ParseToken validates a download token and returns its metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to a stored export file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes export files older than ttl (defaults to ResultTTL).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) process(ctx context.Context, qj jobs.Job) error {
	jobID, _ := qj.Payload.(string)

	s.mu.Lock()
	job, ok := s.jobsByID[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("export job %s missing", jobID)
	}
	job.Status = models.ExportStatusProcessing
	format := job.Format
	filter := job.Filter
	s.mu.Unlock()

	dataset, err := s.buildRosterDataset(ctx, filter)
	if err != nil {
		s.fail(jobID, err)
		return err
	}

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Student Roster")
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		s.fail(jobID, err)
		return err
	}

	filename := fmt.Sprintf("roster_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.fail(jobID, err)
		return err
	}

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		s.fail(jobID, err)
		return err
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	resultURL := fmt.Sprintf("%s/exports/download/%s", prefix, token)

	now := time.Now().UTC()
	s.mu.Lock()
	if job, ok := s.jobsByID[jobID]; ok {
		job.Status = models.ExportStatusFinished
		job.ResultURL = &resultURL
		job.ExpiresAt = &expiresAt
		job.FinishedAt = &now
	}
	s.mu.Unlock()

	s.logger.Info("roster export finished",
		zap.String("job_id", jobID),
		zap.String("format", string(format)),
		zap.String("file", relPath))
	return nil
}

// buildRosterDataset pages through the filtered roster so large directories
// do not load in one query.
func (s *ExportService) buildRosterDataset(ctx context.Context, filter models.RecordFilter) (export.Dataset, error) {
	headers := []string{"Name", "Email", "Status", "Grade", "Country", "Phone", "Last active"}
	rows := make([]map[string]string, 0)

	filter.Page = 1
	filter.PageSize = exportPageSize
	for {
		records, total, err := s.records.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, rec := range records {
			rows = append(rows, map[string]string{
				"Name":        rec.Name,
				"Email":       rec.Email,
				"Status":      string(rec.Status),
				"Grade":       rec.Grade,
				"Country":     rec.Country,
				"Phone":       rec.Phone,
				"Last active": FormatLastActive(rec.LastActive),
			})
		}
		if len(records) < exportPageSize || len(rows) >= total {
			break
		}
		filter.Page++
	}

	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func (s *ExportService) fail(jobID string, cause error) {
	now := time.Now().UTC()
	message := cause.Error()
	s.mu.Lock()
	if job, ok := s.jobsByID[jobID]; ok {
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = &message
		job.FinishedAt = &now
	}
	s.mu.Unlock()
	s.logger.Error("roster export failed", zap.String("job_id", jobID), zap.Error(cause))
}

func snapshotJob(job *models.ExportJob) *models.ExportJob {
	copied := *job
	return &copied
}
