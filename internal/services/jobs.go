package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/ctxutil"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

const (
	JobTypeIngest   = "ingest"
	JobTypeClassify = "classify"
	JobTypeProcess  = "process"
)

var jobTypes = map[string]bool{
	JobTypeIngest:   true,
	JobTypeClassify: true,
	JobTypeProcess:  true,
}

// JobDispatcher hands a created job to whatever executes it.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *types.JobRun) error
	// Cancel stops local execution of the job if this process runs it.
	Cancel(ctx context.Context, jobID uuid.UUID) error
}

type JobService interface {
	// Start creates the job holding the system-wide lease and dispatches it.
	// A lease already held yields a Conflict.
	Start(dbc dbctx.Context, jobType string, config json.RawMessage) (*types.JobRun, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	List(dbc dbctx.Context, status string, limit int) ([]*types.JobRun, error)
	Cancel(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
}

type JobServiceConfig struct {
	InstanceID string
	LeaseTTL   time.Duration
}

type jobService struct {
	log        *logger.Logger
	repo       repos.JobRunRepo
	notify     JobNotifier
	dispatcher JobDispatcher
	cfg        JobServiceConfig
}

func NewJobService(baseLog *logger.Logger, repo repos.JobRunRepo, notify JobNotifier, dispatcher JobDispatcher, cfg JobServiceConfig) JobService {
	if strings.TrimSpace(cfg.InstanceID) == "" {
		cfg.InstanceID = "api"
	}
	return &jobService{
		log:        baseLog.With("service", "JobService"),
		repo:       repo,
		notify:     notify,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

func (s *jobService) Start(dbc dbctx.Context, jobType string, config json.RawMessage) (*types.JobRun, error) {
	jobType = strings.ToLower(strings.TrimSpace(jobType))
	if !jobTypes[jobType] {
		return nil, apierr.Validation("unknown job_type %q", jobType)
	}
	cfgJSON, err := normalizeConfig(dbc.Context(), config)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if s.cfg.LeaseTTL > 0 {
		reaped, err := s.repo.ReapExpired(dbc, now)
		if err != nil {
			return nil, apierr.Persistence("reap expired leases", err)
		}
		if reaped > 0 {
			observability.ObserveLeasesReaped(reaped)
			s.log.Warn("reaped expired job leases", "count", reaped)
		}
	}

	lease := jobtypes.LeaseKeyLedger
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		Status:     jobtypes.StatusPending,
		Stage:      jobtypes.StatusPending,
		Message:    "Queued",
		Config:     cfgJSON,
		LeaseKey:   &lease,
		OwnerID:    s.cfg.InstanceID,
		AcquiredAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.cfg.LeaseTTL > 0 {
		exp := now.Add(s.cfg.LeaseTTL)
		job.LeaseExpiresAt = &exp
	}
	if err := s.repo.Create(dbc, job); err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, s.conflict(dbc)
		}
		return nil, apierr.Persistence("create job", err)
	}
	observability.ObserveJob(jobType, jobtypes.StatusPending)
	s.notify.JobCreated(job)

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(dbc.Context(), job); err != nil {
			s.log.Error("dispatch failed", "job_id", job.ID, "error", err)
			_, _ = s.repo.Finish(dbc, job.ID, jobtypes.StatusFailed, map[string]interface{}{
				"stage": "dispatch",
				"error": err.Error(),
			})
			observability.ObserveJob(jobType, jobtypes.StatusFailed)
			return nil, apierr.Persistence("dispatch job", err)
		}
	}
	s.log.Info("job started", "job_id", job.ID, "job_type", jobType)
	return job, nil
}

func (s *jobService) conflict(dbc dbctx.Context) error {
	holder, err := s.repo.GetLeaseHolder(dbc, jobtypes.LeaseKeyLedger)
	if err != nil || holder == nil {
		return apierr.Conflict("another job is already running")
	}
	return apierr.Conflict("job %s (%s) is already %s", holder.ID, holder.JobType, holder.Status)
}

// normalizeConfig stores the config as a JSON object and stamps the request's
// trace ids so the job's logs can be joined with the request that started it.
func normalizeConfig(ctx context.Context, raw json.RawMessage) (datatypes.JSON, error) {
	cfg := map[string]any{}
	if s := strings.TrimSpace(string(raw)); s != "" && s != "null" {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, apierr.Validation("config must be a JSON object: %v", err)
		}
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := cfg["trace_id"]; !ok {
				cfg["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := cfg["request_id"]; !ok {
				cfg["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, apierr.Validation("encode config: %v", err)
	}
	return datatypes.JSON(b), nil
}

func (s *jobService) Get(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Persistence("load job", err)
	}
	if job == nil {
		return nil, apierr.NotFound("job %s not found", id)
	}
	return job, nil
}

func (s *jobService) List(dbc dbctx.Context, status string, limit int) ([]*types.JobRun, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", jobtypes.StatusPending, jobtypes.StatusRunning, jobtypes.StatusCompleted, jobtypes.StatusFailed, jobtypes.StatusCancelled:
	default:
		return nil, apierr.Validation("unknown job status %q", status)
	}
	if limit > 200 {
		limit = 200
	}
	out, err := s.repo.List(dbc, status, limit)
	if err != nil {
		return nil, apierr.Persistence("list jobs", err)
	}
	return out, nil
}

// Cancel marks the job cancelled, releasing the lease, then asks the
// dispatcher to stop it. Ledger writes the job already committed stay.
func (s *jobService) Cancel(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	job, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return nil, apierr.Conflict("job %s is already %s", id, job.Status)
	}
	ok, err := s.repo.Finish(dbc, id, jobtypes.StatusCancelled, map[string]interface{}{
		"stage":   jobtypes.StatusCancelled,
		"message": "Cancelled",
	})
	if err != nil {
		return nil, apierr.Persistence("cancel job", err)
	}
	if !ok {
		current, _ := s.repo.GetByID(dbc, id)
		if current != nil {
			return nil, apierr.Conflict("job %s is already %s", id, current.Status)
		}
		return nil, apierr.NotFound("job %s not found", id)
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Cancel(dbc.Context(), id); err != nil {
			s.log.Warn("cancel execution failed", "job_id", id, "error", err)
		}
	}
	job, err = s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	observability.ObserveJob(job.JobType, jobtypes.StatusCancelled)
	s.notify.JobCancelled(job)
	s.log.Info("job cancelled", "job_id", id)
	return job, nil
}
