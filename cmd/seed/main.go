package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Ranguvenu/skf-sub003/internal/config"
	"github.com/Ranguvenu/skf-sub003/internal/database"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/logger"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	courseCount   = 40
	userCount     = 500
	enrolmentsPer = 4
	teacherCount  = 10
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS {course} (
		id INTEGER PRIMARY KEY,
		fullname VARCHAR(255) NOT NULL,
		shortname VARCHAR(100) NOT NULL,
		category INTEGER NOT NULL DEFAULT 1,
		startdate BIGINT NOT NULL DEFAULT 0,
		timecreated BIGINT NOT NULL DEFAULT 0,
		visible SMALLINT NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS {user} (
		id INTEGER PRIMARY KEY,
		username VARCHAR(100) NOT NULL,
		firstname VARCHAR(100) NOT NULL,
		lastname VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL,
		country VARCHAR(2) NOT NULL DEFAULT '',
		age INTEGER,
		confirmed SMALLINT NOT NULL DEFAULT 1,
		deleted SMALLINT NOT NULL DEFAULT 0,
		timecreated BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS {enrolment} (
		id INTEGER PRIMARY KEY,
		userid INTEGER NOT NULL,
		courseid INTEGER NOT NULL,
		timecreated BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS {role} (
		id INTEGER PRIMARY KEY,
		shortname VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS {role_capability} (
		id INTEGER PRIMARY KEY,
		roleid INTEGER NOT NULL,
		capability VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS {role_assignment} (
		id INTEGER PRIMARY KEY,
		userid INTEGER NOT NULL,
		courseid INTEGER NOT NULL,
		roleid INTEGER NOT NULL
	)`,
}

// Seed populates the report database with synthetic courses, users,
// enrolments and role data so reports have something to run over in
// development.
func Seed(lc fx.Lifecycle, db *database.ReportDB, logger *zap.Logger, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()

				if err := seed(context.Background(), db, logger); err != nil {
					logger.Error("Seeding failed", zap.Error(err))
					return
				}
				logger.Info("Seeding complete",
					zap.Int("courses", courseCount),
					zap.Int("users", userCount))
			}()
			return nil
		},
	})
}

func seed(ctx context.Context, db *database.ReportDB, logger *zap.Logger) error {
	gofakeit.Seed(0)

	logger.Info("Creating report tables")
	for _, stmt := range schema {
		if err := db.Exec(ctx, stmt, nil); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	now := time.Now().Unix()

	logger.Info("Seeding courses")
	for i := 1; i <= courseCount; i++ {
		err := db.Exec(ctx,
			"INSERT INTO {course} (id, fullname, shortname, category, startdate, timecreated, visible) "+
				"VALUES (:id, :fullname, :shortname, :category, :startdate, :timecreated, :visible)",
			map[string]any{
				"id":          i,
				"fullname":    gofakeit.Sentence(3),
				"shortname":   fmt.Sprintf("C%03d", i),
				"category":    gofakeit.Number(1, 5),
				"startdate":   now - int64(gofakeit.Number(0, 180))*86400,
				"timecreated": now - int64(gofakeit.Number(180, 720))*86400,
				"visible":     visibleFlag(i),
			})
		if err != nil {
			return fmt.Errorf("insert course %d: %w", i, err)
		}
	}

	logger.Info("Seeding users")
	for i := 1; i <= userCount; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		err := db.Exec(ctx,
			"INSERT INTO {user} (id, username, firstname, lastname, email, country, age, confirmed, deleted, timecreated) "+
				"VALUES (:id, :username, :firstname, :lastname, :email, :country, :age, :confirmed, :deleted, :timecreated)",
			map[string]any{
				"id":          i,
				"username":    fmt.Sprintf("%s%d", gofakeit.Username(), i),
				"firstname":   first,
				"lastname":    last,
				"email":       fmt.Sprintf("%s.%s%d@example.org", first, last, i),
				"country":     gofakeit.CountryAbr(),
				"age":         gofakeit.Number(16, 70),
				"confirmed":   1,
				"deleted":     deletedFlag(i),
				"timecreated": now - int64(gofakeit.Number(0, 720))*86400,
			})
		if err != nil {
			return fmt.Errorf("insert user %d: %w", i, err)
		}
	}

	logger.Info("Seeding enrolments")
	enrolID := 0
	for userID := 1; userID <= userCount; userID++ {
		for n := 0; n < gofakeit.Number(1, enrolmentsPer); n++ {
			enrolID++
			err := db.Exec(ctx,
				"INSERT INTO {enrolment} (id, userid, courseid, timecreated) "+
					"VALUES (:id, :userid, :courseid, :timecreated)",
				map[string]any{
					"id":          enrolID,
					"userid":      userID,
					"courseid":    gofakeit.Number(1, courseCount),
					"timecreated": now - int64(gofakeit.Number(0, 180))*86400,
				})
			if err != nil {
				return fmt.Errorf("insert enrolment: %w", err)
			}
		}
	}

	logger.Info("Seeding roles")
	roles := []struct {
		id           int
		shortname    string
		capabilities []string
	}{
		{1, "manager", []string{permission.CapView, permission.CapManage}},
		{2, "teacher", []string{permission.CapView}},
		{3, "student", nil},
	}
	capID := 0
	for _, role := range roles {
		err := db.Exec(ctx,
			"INSERT INTO {role} (id, shortname) VALUES (:id, :shortname)",
			map[string]any{"id": role.id, "shortname": role.shortname})
		if err != nil {
			return fmt.Errorf("insert role %s: %w", role.shortname, err)
		}
		for _, capability := range role.capabilities {
			capID++
			err := db.Exec(ctx,
				"INSERT INTO {role_capability} (id, roleid, capability) VALUES (:id, :roleid, :capability)",
				map[string]any{"id": capID, "roleid": role.id, "capability": capability})
			if err != nil {
				return fmt.Errorf("insert capability: %w", err)
			}
		}
	}

	// A handful of teacher assignments so restricted callers end up with a
	// non-empty course allow-list.
	logger.Info("Seeding role assignments")
	assignID := 0
	for userID := 1; userID <= teacherCount; userID++ {
		for n := 0; n < 2; n++ {
			assignID++
			err := db.Exec(ctx,
				"INSERT INTO {role_assignment} (id, userid, courseid, roleid) "+
					"VALUES (:id, :userid, :courseid, :roleid)",
				map[string]any{
					"id":       assignID,
					"userid":   userID,
					"courseid": gofakeit.Number(1, courseCount),
					"roleid":   2,
				})
			if err != nil {
				return fmt.Errorf("insert role assignment: %w", err)
			}
		}
	}

	return nil
}

// Roughly one in ten courses is hidden; reports must never surface them.
func visibleFlag(i int) int {
	if i%10 == 0 {
		return 0
	}
	return 1
}

func deletedFlag(i int) int {
	if i%25 == 0 {
		return 1
	}
	return 0
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			database.NewDatabase,
			database.NewReportDB,
			logger.NewLogger,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(Seed),
	)

	app.Run()
}
