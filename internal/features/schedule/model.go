package schedule

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Schedule runs a stored report periodically. Scheduled runs execute with
// the system identity in low-security mode, so only administrators may
// create them.
type Schedule struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name     string             `json:"name" bson:"name"`
	ReportID string             `json:"report_id" bson:"report_id"`
	Spec     string             `json:"spec" bson:"spec"` // standard cron expression
	Params   map[string]any     `json:"params,omitempty" bson:"params,omitempty"`
	Active   bool               `json:"active" bson:"active"`

	LastRun *time.Time `json:"last_run,omitempty" bson:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty" bson:"next_run,omitempty"`

	CreatedBy int64     `json:"created_by" bson:"created_by"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// RunLog records a single execution of a schedule.
type RunLog struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ScheduleID primitive.ObjectID `json:"schedule_id" bson:"schedule_id"`
	ReportID   string             `json:"report_id" bson:"report_id"`
	StartTime  time.Time          `json:"start_time" bson:"start_time"`
	EndTime    *time.Time         `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Status     string             `json:"status" bson:"status"` // running, success, failed
	Rows       int                `json:"rows" bson:"rows"`
	Total      int64              `json:"total" bson:"total"`
	Error      string             `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}
