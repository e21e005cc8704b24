package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adamchain/heyway-core/internal/pkg/distlock"
	"github.com/adamchain/heyway-core/internal/pkg/logger"
)

// ErrImportInProgress is returned when another import already holds the
// cross-instance import lock.
var ErrImportInProgress = errors.New("another import is already in progress")

// =============================================================================
// IMPORT SERVICE
// =============================================================================

// DNCChecker answers whether a normalized phone number is on a loaded
// do-not-call list.
type DNCChecker interface {
	IsBlocked(phone string) bool
}

const (
	// blacklistKey is the Redis set of operator-blacklisted numbers.
	blacklistKey = "blacklist:numbers"
	// progressKeyPrefix prefixes per-job progress keys.
	progressKeyPrefix = "import:progress:"
	// progressTTL is how long finished progress records stay readable.
	progressTTL = time.Hour
	// progressEvery is the row cadence for progress writes.
	progressEvery = 250
	// insertChunkSize bounds rows per INSERT statement.
	insertChunkSize = 500
	// importLockKey serializes imports across server instances so the
	// database duplicate check cannot race itself.
	importLockKey = "import:run"
	// importLockTTL bounds how long a crashed import can block others.
	importLockTTL = 10 * time.Minute
)

// Progress is the live status of an import job, published to Redis so
// clients can poll it while the batch runs.
type Progress struct {
	JobID         string    `json:"jobId"`
	Status        string    `json:"status"`
	Total         int       `json:"total"`
	Processed     int       `json:"processed"`
	Imported      int       `json:"imported"`
	Skipped       int       `json:"skipped"`
	RowsPerSecond float64   `json:"rowsPerSecond"`
	ETASeconds    int       `json:"etaSeconds"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// JobResult is the outcome of a completed server-side import.
type JobResult struct {
	JobID    string        `json:"jobId"`
	Imported int           `json:"imported"`
	Errors   []ImportError `json:"errors"`
	Summary  Summary       `json:"summary"`
}

// Service runs the full server-side import pipeline: validation,
// do-not-call screening, blacklist screening, and persistence with
// database-level duplicate detection.
type Service struct {
	db    *sql.DB
	redis *redis.Client
	dnc   DNCChecker
}

// NewService creates an import service. dnc may be nil when no
// do-not-call lists are loaded.
func NewService(db *sql.DB, rdb *redis.Client, dnc DNCChecker) *Service {
	return &Service{db: db, redis: rdb, dnc: dnc}
}

// Import validates the batch, screens the valid contacts, and persists
// the survivors. Screening and persistence failures are reported with
// the same error codes as validation failures so the caller sees one
// unified error list.
func (s *Service) Import(ctx context.Context, records []Record, opts Options) (*JobResult, error) {
	lock := distlock.New(s.redis, s.db, importLockKey, importLockTTL)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire import lock: %w", err)
	}
	if !acquired {
		return nil, ErrImportInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release import lock", "error", err.Error())
		}
	}()

	jobID := uuid.New().String()
	started := time.Now()

	res := Validate(records, opts)
	errors := res.Errors

	logger.Info("import started",
		"job_id", jobID,
		"total", fmt.Sprintf("%d", res.Summary.Total),
		"valid", fmt.Sprintf("%d", res.Summary.Valid))

	// Screen validated contacts against DNC and the blacklist before
	// touching the database.
	importable := make([]Contact, 0, len(res.ValidContacts))
	for _, c := range res.ValidContacts {
		if s.dnc != nil && s.dnc.IsBlocked(c.NormalizedPhone) {
			errors = append(errors, screeningError(c, CodeDNCBlocked,
				"number is on a do-not-call list"))
			continue
		}
		blocked, err := s.isBlacklisted(ctx, c.NormalizedPhone)
		if err != nil {
			// Screening backend down: fail the record rather than let
			// an unscreened number through.
			errors = append(errors, screeningError(c, CodeIntegrationFailure,
				"blacklist check unavailable: "+err.Error()))
			continue
		}
		if blocked {
			errors = append(errors, screeningError(c, CodeBlacklistedNumber,
				"number is blacklisted"))
			continue
		}
		importable = append(importable, c)
	}

	imported, dbErrors, err := s.insertContacts(ctx, jobID, started, res.Summary.Total, importable)
	errors = append(errors, dbErrors...)
	if err != nil {
		s.publishProgress(ctx, Progress{
			JobID: jobID, Status: "failed",
			Total: res.Summary.Total, Processed: res.Summary.Total,
			Imported: imported, Skipped: len(errors),
			UpdatedAt: time.Now(),
		})
		return nil, fmt.Errorf("import %s failed: %w", jobID, err)
	}

	summary := Summary{
		Total:      res.Summary.Total,
		Valid:      res.Summary.Valid,
		Invalid:    res.Summary.Invalid,
		WillImport: imported,
		WillSkip:   len(errors),
	}

	s.publishProgress(ctx, Progress{
		JobID: jobID, Status: "completed",
		Total: summary.Total, Processed: summary.Total,
		Imported: imported, Skipped: len(errors),
		RowsPerSecond: rate(summary.Total, time.Since(started)),
		UpdatedAt:     time.Now(),
	})

	if err := s.recordJob(ctx, jobID, started, summary, imported); err != nil {
		logger.Warn("failed to record import job", "job_id", jobID, "error", err.Error())
	}

	logger.Info("import finished",
		"job_id", jobID,
		"imported", fmt.Sprintf("%d", imported),
		"skipped", fmt.Sprintf("%d", len(errors)),
		"duration", time.Since(started).String())

	return &JobResult{JobID: jobID, Imported: imported, Errors: errors, Summary: summary}, nil
}

// GetProgress reads the published progress of a job, or nil when the
// job is unknown or expired.
func (s *Service) GetProgress(ctx context.Context, jobID string) (*Progress, error) {
	if s.redis == nil {
		return nil, nil
	}
	data, err := s.redis.Get(ctx, progressKeyPrefix+jobID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for job %s: %w", jobID, err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("corrupt progress record for job %s: %w", jobID, err)
	}
	return &p, nil
}

// =============================================================================
// SCREENING
// =============================================================================

func (s *Service) isBlacklisted(ctx context.Context, phone string) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	return s.redis.SIsMember(ctx, blacklistKey, phone).Result()
}

func screeningError(c Contact, code ErrorCode, message string) ImportError {
	return ImportError{
		Index: -1,
		Raw: Record{
			Name:        c.Name,
			PhoneNumber: c.NormalizedPhone,
			Email:       c.Email,
			Fields:      c.Fields,
		},
		Code:      code,
		Message:   message,
		Field:     "phone",
		Timestamp: time.Now(),
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// insertContacts persists the batch in chunks. Normalized phone is the
// uniqueness key; conflicts are reported per contact rather than
// failing the batch.
func (s *Service) insertContacts(ctx context.Context, jobID string, started time.Time, total int, contacts []Contact) (int, []ImportError, error) {
	var imported int
	var errs []ImportError

	for offset := 0; offset < len(contacts); offset += insertChunkSize {
		end := offset + insertChunkSize
		if end > len(contacts) {
			end = len(contacts)
		}

		for _, c := range contacts[offset:end] {
			var refDate sql.NullTime
			if c.ReferenceDate != nil {
				refDate = sql.NullTime{Time: *c.ReferenceDate, Valid: true}
			}
			fields, _ := json.Marshal(c.Fields)

			res, err := s.db.ExecContext(ctx, `
				INSERT INTO contacts (id, name, normalized_phone, email, reference_date, fields, import_job_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				ON CONFLICT (normalized_phone) DO NOTHING`,
				uuid.New().String(), c.Name, c.NormalizedPhone, c.Email, refDate, fields, jobID)
			if err != nil {
				return imported, errs, fmt.Errorf("failed to insert contact: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return imported, errs, fmt.Errorf("failed to read insert result: %w", err)
			}
			if n == 0 {
				errs = append(errs, screeningError(c, CodeDuplicateInDB,
					"a contact with this phone number already exists"))
				continue
			}
			imported++

			if imported%progressEvery == 0 {
				elapsed := time.Since(started)
				r := rate(imported, elapsed)
				eta := 0
				if r > 0 {
					eta = int(float64(len(contacts)-imported) / r)
				}
				s.publishProgress(ctx, Progress{
					JobID: jobID, Status: "running",
					Total: total, Processed: imported + len(errs),
					Imported: imported, Skipped: len(errs),
					RowsPerSecond: r, ETASeconds: eta,
					UpdatedAt: time.Now(),
				})
			}
		}
	}

	return imported, errs, nil
}

func (s *Service) recordJob(ctx context.Context, jobID string, started time.Time, summary Summary, imported int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (id, total, imported, skipped, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		jobID, summary.Total, imported, summary.WillSkip, started)
	return err
}

func (s *Service) publishProgress(ctx context.Context, p Progress) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, progressKeyPrefix+p.JobID, data, progressTTL).Err(); err != nil {
		logger.Warn("failed to publish import progress", "job_id", p.JobID, "error", err.Error())
	}
}

func rate(rows int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(rows) / elapsed.Seconds()
}
