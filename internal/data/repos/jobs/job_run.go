package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

var terminalStatuses = []string{
	jobtypes.StatusCompleted,
	jobtypes.StatusFailed,
	jobtypes.StatusCancelled,
}

type JobRunRepo interface {
	Create(dbc dbctx.Context, job *types.JobRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	List(dbc dbctx.Context, status string, limit int) ([]*types.JobRun, error)
	GetLeaseHolder(dbc dbctx.Context, leaseKey string) (*types.JobRun, error)
	ReapExpired(dbc dbctx.Context, now time.Time) (int64, error)
	MarkRunning(dbc dbctx.Context, id uuid.UUID, ownerID string, ttl time.Duration) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Finish(dbc dbctx.Context, id uuid.UUID, status string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID, ttl time.Duration) error
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

// Create inserts the job. A job holding a lease key that another row already
// holds fails with a unique violation; callers translate that into a conflict.
func (r *jobRunRepo) Create(dbc dbctx.Context, job *types.JobRun) error {
	if job == nil {
		return nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.dbx(dbc).Create(job).Error
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := r.dbx(dbc).Where("id = ?", id).Limit(1).Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) List(dbc dbctx.Context, status string, limit int) ([]*types.JobRun, error) {
	q := r.dbx(dbc).Model(&types.JobRun{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.JobRun
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRunRepo) GetLeaseHolder(dbc dbctx.Context, leaseKey string) (*types.JobRun, error) {
	var job types.JobRun
	err := r.dbx(dbc).Where("lease_key = ?", leaseKey).Limit(1).Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ReapExpired fails every non-terminal job whose lease expired before now and
// frees its lease key.
func (r *jobRunRepo) ReapExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	res := r.dbx(dbc).
		Model(&types.JobRun{}).
		Where("lease_key IS NOT NULL AND lease_expires_at IS NOT NULL AND lease_expires_at < ?", now).
		Where("status NOT IN ?", terminalStatuses).
		Updates(map[string]interface{}{
			"status":      jobtypes.StatusFailed,
			"stage":       "reaped",
			"error":       "lease expired",
			"lease_key":   nil,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// MarkRunning moves a pending job to running. It reports false when the job
// was already claimed or cancelled.
func (r *jobRunRepo) MarkRunning(dbc dbctx.Context, id uuid.UUID, ownerID string, ttl time.Duration) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":       jobtypes.StatusRunning,
		"owner_id":     ownerID,
		"started_at":   now,
		"heartbeat_at": now,
		"updated_at":   now,
	}
	if ttl > 0 {
		updates["lease_expires_at"] = now.Add(ttl)
	}
	res := r.dbx(dbc).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, jobtypes.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.dbx(dbc).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := r.dbx(dbc).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Finish moves a non-terminal job into a terminal status and releases its
// lease in the same statement. It reports false if the job was already terminal.
func (r *jobRunRepo) Finish(dbc dbctx.Context, id uuid.UUID, status string, updates map[string]interface{}) (bool, error) {
	if !isTerminal(status) {
		return false, errors.New("finish requires a terminal status")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	now := time.Now()
	updates["status"] = status
	updates["lease_key"] = nil
	if _, ok := updates["finished_at"]; !ok {
		updates["finished_at"] = now
	}
	return r.UpdateFieldsUnlessStatus(dbc, id, terminalStatuses, updates)
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID, ttl time.Duration) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	updates := map[string]interface{}{
		"heartbeat_at": now,
		"updated_at":   now,
	}
	if ttl > 0 {
		updates["lease_expires_at"] = now.Add(ttl)
	}
	return r.dbx(dbc).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, jobtypes.StatusRunning).
		Updates(updates).Error
}

func isTerminal(status string) bool {
	for _, s := range terminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}
