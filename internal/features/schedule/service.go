package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/executor"
	"github.com/Ranguvenu/skf-sub003/internal/features/report"
)

type ScheduleService interface {
	CreateSchedule(ctx context.Context, schedule *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ExecuteSchedule(ctx context.Context, id string) error
	GetScheduleLogs(ctx context.Context, scheduleID string, limit int) ([]RunLog, error)
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	RegisterJob(schedule *Schedule) error
	UnregisterJob(id string) error
}

type ScheduleServiceImpl struct {
	repo       ScheduleRepository
	reportRepo report.ReportRepository
	executor   executor.Executor
	logger     *zap.Logger

	scheduler  *cron.Cron
	jobEntries map[string]cron.EntryID
	mu         sync.RWMutex
}

func NewScheduleService(
	repo ScheduleRepository,
	reportRepo report.ReportRepository,
	exec executor.Executor,
	logger *zap.Logger,
) ScheduleService {
	return &ScheduleServiceImpl{
		repo:       repo,
		reportRepo: reportRepo,
		executor:   exec,
		logger:     logger,
		jobEntries: make(map[string]cron.EntryID),
	}
}

func (s *ScheduleServiceImpl) CreateSchedule(ctx context.Context, schedule *Schedule) error {
	spec, err := cron.ParseStandard(schedule.Spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if _, err := s.reportRepo.Get(ctx, schedule.ReportID); err != nil {
		return fmt.Errorf("report %s: %w", schedule.ReportID, err)
	}

	nextRun := spec.Next(time.Now())
	schedule.NextRun = &nextRun

	if err := s.repo.Create(ctx, schedule); err != nil {
		return err
	}

	if schedule.Active && s.scheduler != nil {
		if err := s.RegisterJob(schedule); err != nil {
			s.logger.Warn("failed to register schedule",
				zap.String("schedule_id", schedule.ID.Hex()), zap.Error(err))
		}
	}
	return nil
}

func (s *ScheduleServiceImpl) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ScheduleServiceImpl) ListSchedules(ctx context.Context) ([]Schedule, error) {
	return s.repo.List(ctx)
}

func (s *ScheduleServiceImpl) UpdateSchedule(ctx context.Context, schedule *Schedule) error {
	spec, err := cron.ParseStandard(schedule.Spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	nextRun := spec.Next(time.Now())
	schedule.NextRun = &nextRun

	if err := s.repo.Update(ctx, schedule); err != nil {
		return err
	}

	s.UnregisterJob(schedule.ID.Hex())
	if schedule.Active && s.scheduler != nil {
		if err := s.RegisterJob(schedule); err != nil {
			s.logger.Warn("failed to register updated schedule",
				zap.String("schedule_id", schedule.ID.Hex()), zap.Error(err))
		}
	}
	return nil
}

func (s *ScheduleServiceImpl) DeleteSchedule(ctx context.Context, id string) error {
	s.UnregisterJob(id)
	return s.repo.Delete(ctx, id)
}

func (s *ScheduleServiceImpl) ExecuteSchedule(ctx context.Context, id string) error {
	schedule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if schedule == nil {
		return fmt.Errorf("schedule not found")
	}
	return s.execute(ctx, schedule)
}

func (s *ScheduleServiceImpl) execute(ctx context.Context, schedule *Schedule) error {
	startTime := time.Now()

	logEntry := &RunLog{
		ScheduleID: schedule.ID,
		ReportID:   schedule.ReportID,
		StartTime:  startTime,
		Status:     "running",
	}
	if err := s.repo.CreateLog(ctx, logEntry); err != nil {
		s.logger.Warn("failed to create schedule log",
			zap.String("schedule_id", schedule.ID.Hex()), zap.Error(err))
	}

	result, execErr := s.runReport(ctx, schedule)

	endTime := time.Now()
	logEntry.EndTime = &endTime
	if execErr != nil {
		logEntry.Status = "failed"
		logEntry.Error = execErr.Error()
	} else {
		logEntry.Status = "success"
		logEntry.Rows = len(result.Rows)
		logEntry.Total = result.Total
	}
	if err := s.repo.UpdateLog(ctx, logEntry); err != nil {
		s.logger.Warn("failed to update schedule log",
			zap.String("schedule_id", schedule.ID.Hex()), zap.Error(err))
	}

	if spec, err := cron.ParseStandard(schedule.Spec); err == nil {
		nextRun := spec.Next(time.Now())
		if err := s.repo.UpdateLastRun(ctx, schedule.ID.Hex(), startTime, &nextRun); err != nil {
			s.logger.Warn("failed to update last run",
				zap.String("schedule_id", schedule.ID.Hex()), zap.Error(err))
		}
	}

	return execErr
}

// runReport executes the scheduled report with the system identity. The
// trusted path is what permits sql-type reports to run unattended in
// low-security mode.
func (s *ScheduleServiceImpl) runReport(ctx context.Context, schedule *Schedule) (*engine.Result, error) {
	stored, err := s.reportRepo.Get(ctx, schedule.ReportID)
	if err != nil {
		return nil, err
	}
	return s.executor.RunTrusted(ctx, stored.Definition(), &engine.RunRequest{
		Identity: engine.Identity{IsAdmin: true},
		Params:   schedule.Params,
	})
}

func (s *ScheduleServiceImpl) GetScheduleLogs(ctx context.Context, scheduleID string, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.GetLogs(ctx, scheduleID, limit)
}

func (s *ScheduleServiceImpl) InitializeScheduler(ctx context.Context) error {
	s.logger.Info("initializing report scheduler")
	s.scheduler = cron.New()

	schedules, err := s.repo.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active schedules: %w", err)
	}
	for i := range schedules {
		if err := s.RegisterJob(&schedules[i]); err != nil {
			s.logger.Warn("failed to register schedule",
				zap.String("schedule_id", schedules[i].ID.Hex()), zap.Error(err))
		}
	}

	s.scheduler.Start()
	return nil
}

func (s *ScheduleServiceImpl) StopScheduler() error {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}

func (s *ScheduleServiceImpl) RegisterJob(schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	scheduleID := schedule.ID.Hex()
	jobFunc := func() {
		ctx := context.Background()
		latest, err := s.repo.GetByID(ctx, scheduleID)
		if err != nil || latest == nil || !latest.Active {
			return
		}
		if err := s.execute(ctx, latest); err != nil {
			s.logger.Warn("scheduled run failed",
				zap.String("schedule_id", scheduleID), zap.Error(err))
		}
	}

	entryID, err := s.scheduler.AddFunc(schedule.Spec, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add schedule to scheduler: %w", err)
	}

	s.jobEntries[scheduleID] = entryID
	return nil
}

func (s *ScheduleServiceImpl) UnregisterJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobEntries[id]; exists {
		if s.scheduler != nil {
			s.scheduler.Remove(entryID)
		}
		delete(s.jobEntries, id)
	}
	return nil
}
