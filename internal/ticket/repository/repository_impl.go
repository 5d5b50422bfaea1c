package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/ticket/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.RepairTicket, error) {
	var ticket domain.RepairTicket
	err := db.WithContext(ctx).Raw(
		`SELECT id, subject, status, timer_is_running, timer_started_at, total_time_minutes, created_at, updated_at
		 FROM repair_tickets WHERE id = ?`,
		id,
	).Scan(&ticket).Error
	if err != nil {
		return nil, err
	}
	if ticket.ID == 0 {
		return nil, nil
	}
	return &ticket, nil
}

func (r *repo) SetTimerStarted(ctx context.Context, db *gorm.DB, id snowflake.ID, startedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE repair_tickets
		 SET timer_is_running = ?, timer_started_at = ?, updated_at = ?
		 WHERE id = ?`,
		true,
		startedAt,
		startedAt,
		id,
	).Error
}

func (r *repo) ClearTimerState(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE repair_tickets
		 SET timer_is_running = ?, timer_started_at = NULL, updated_at = ?
		 WHERE id = ?`,
		false,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) RecomputeTotalTime(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	err := db.WithContext(ctx).Exec(
		`UPDATE repair_tickets
		 SET total_time_minutes = (
			SELECT COALESCE(SUM(duration_minutes), 0) FROM time_entries WHERE ticket_id = ?
		 ), updated_at = ?
		 WHERE id = ?`,
		id,
		time.Now().UTC(),
		id,
	).Error
	if err != nil {
		return 0, err
	}

	var total int64
	err = db.WithContext(ctx).Raw(
		`SELECT total_time_minutes FROM repair_tickets WHERE id = ?`,
		id,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ResetTimerStartedAt(ctx context.Context, db *gorm.DB, id snowflake.ID) (*time.Time, error) {
	var previous *time.Time
	err := db.Transaction(func(tx *gorm.DB) error {
		var row struct {
			TimerStartedAt *time.Time `gorm:"column:timer_started_at"`
		}
		if err := tx.WithContext(ctx).Raw(
			`SELECT timer_started_at FROM repair_tickets WHERE id = ?`,
			id,
		).Scan(&row).Error; err != nil {
			return err
		}
		previous = row.TimerStartedAt

		return tx.WithContext(ctx).Exec(
			`UPDATE repair_tickets SET timer_started_at = NULL, updated_at = ? WHERE id = ?`,
			time.Now().UTC(),
			id,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}
