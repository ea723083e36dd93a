package models

import "time"

// SchedulerLock is a lease on a scheduled job. The (job, scope) pair is
// unique, so at most one server instance holds a job at a time; a lease past
// ExpiresAt may be taken over.
type SchedulerLock struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Job        string    `gorm:"uniqueIndex:idx_scheduler_job_scope;size:100;not null" json:"job"`
	Scope      string    `gorm:"uniqueIndex:idx_scheduler_job_scope;size:100;not null" json:"scope"`
	Holder     string    `gorm:"size:100" json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }
