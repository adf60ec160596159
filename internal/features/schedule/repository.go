package schedule

import (
	"context"
	"time"

	"github.com/Ranguvenu/skf-sub003/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ScheduleRepository interface {
	Create(ctx context.Context, schedule *Schedule) error
	GetByID(ctx context.Context, id string) (*Schedule, error)
	List(ctx context.Context) ([]Schedule, error)
	Update(ctx context.Context, schedule *Schedule) error
	Delete(ctx context.Context, id string) error
	GetActive(ctx context.Context) ([]Schedule, error)
	UpdateLastRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time) error

	CreateLog(ctx context.Context, log *RunLog) error
	UpdateLog(ctx context.Context, log *RunLog) error
	GetLogs(ctx context.Context, scheduleID string, limit int) ([]RunLog, error)
}

type ScheduleRepositoryImpl struct {
	collection    *mongo.Collection
	logCollection *mongo.Collection
}

func NewScheduleRepository(db *database.MongodbDB) ScheduleRepository {
	return &ScheduleRepositoryImpl{
		collection:    db.DB.Collection("schedules"),
		logCollection: db.DB.Collection("schedule_logs"),
	}
}

func (r *ScheduleRepositoryImpl) Create(ctx context.Context, schedule *Schedule) error {
	schedule.ID = primitive.NewObjectID()
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, schedule)
	return err
}

func (r *ScheduleRepositoryImpl) GetByID(ctx context.Context, id string) (*Schedule, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var schedule Schedule
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&schedule)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

func (r *ScheduleRepositoryImpl) List(ctx context.Context) ([]Schedule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var schedules []Schedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *ScheduleRepositoryImpl) Update(ctx context.Context, schedule *Schedule) error {
	schedule.UpdatedAt = time.Now()
	update := bson.M{
		"$set": bson.M{
			"name":       schedule.Name,
			"report_id":  schedule.ReportID,
			"spec":       schedule.Spec,
			"params":     schedule.Params,
			"active":     schedule.Active,
			"next_run":   schedule.NextRun,
			"updated_at": schedule.UpdatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": schedule.ID}, update)
	return err
}

func (r *ScheduleRepositoryImpl) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	return err
}

func (r *ScheduleRepositoryImpl) GetActive(ctx context.Context) ([]Schedule, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var schedules []Schedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *ScheduleRepositoryImpl) UpdateLastRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{
		"$set": bson.M{"last_run": lastRun, "next_run": nextRun},
	})
	return err
}

func (r *ScheduleRepositoryImpl) CreateLog(ctx context.Context, log *RunLog) error {
	log.ID = primitive.NewObjectID()
	log.CreatedAt = time.Now()
	_, err := r.logCollection.InsertOne(ctx, log)
	return err
}

func (r *ScheduleRepositoryImpl) UpdateLog(ctx context.Context, log *RunLog) error {
	_, err := r.logCollection.UpdateOne(ctx, bson.M{"_id": log.ID}, bson.M{
		"$set": bson.M{
			"end_time": log.EndTime,
			"status":   log.Status,
			"rows":     log.Rows,
			"total":    log.Total,
			"error":    log.Error,
		},
	})
	return err
}

func (r *ScheduleRepositoryImpl) GetLogs(ctx context.Context, scheduleID string, limit int) ([]RunLog, error) {
	objectID, err := primitive.ObjectIDFromHex(scheduleID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.logCollection.Find(ctx, bson.M{"schedule_id": objectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []RunLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
