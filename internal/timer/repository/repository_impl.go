package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/timer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, timer *domain.ActiveTimer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO active_timers (
			id, ticket_id, user_id, started_at, lifetime_started_at,
			is_paused, pause_time, auto_paused_at, elapsed_seconds,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		timer.ID,
		timer.TicketID,
		timer.UserID,
		timer.StartedAt,
		timer.LifetimeStartedAt,
		timer.IsPaused,
		timer.PauseTime,
		timer.AutoPausedAt,
		timer.ElapsedSeconds,
		timer.CreatedAt,
		timer.UpdatedAt,
	).Error
}

func (r *repo) FindByTicket(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (*domain.ActiveTimer, error) {
	var timer domain.ActiveTimer
	err := db.WithContext(ctx).Raw(
		`SELECT id, ticket_id, user_id, started_at, lifetime_started_at,
		        is_paused, pause_time, auto_paused_at, elapsed_seconds,
		        created_at, updated_at
		 FROM active_timers WHERE ticket_id = ?`,
		ticketID,
	).Scan(&timer).Error
	if err != nil {
		return nil, err
	}
	if timer.ID == 0 {
		return nil, nil
	}
	return &timer, nil
}

func (r *repo) FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.ActiveTimer, error) {
	var timer domain.ActiveTimer
	err := db.WithContext(ctx).Raw(
		`SELECT id, ticket_id, user_id, started_at, lifetime_started_at,
		        is_paused, pause_time, auto_paused_at, elapsed_seconds,
		        created_at, updated_at
		 FROM active_timers WHERE user_id = ?`,
		userID,
	).Scan(&timer).Error
	if err != nil {
		return nil, err
	}
	if timer.ID == 0 {
		return nil, nil
	}
	return &timer, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, limit int) ([]*domain.ActiveTimer, error) {
	var timers []*domain.ActiveTimer
	stmt := db.WithContext(ctx).
		Model(&domain.ActiveTimer{}).
		Order("lifetime_started_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&timers).Error; err != nil {
		return nil, err
	}
	return timers, nil
}

func (r *repo) MarkPaused(ctx context.Context, db *gorm.DB, ticketID snowflake.ID, startedAt, pausedAt time.Time, bankedSeconds int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE active_timers
		 SET is_paused = ?, pause_time = ?, elapsed_seconds = ?, updated_at = ?
		 WHERE ticket_id = ? AND is_paused = ? AND auto_paused_at IS NULL AND started_at = ?`,
		true,
		pausedAt,
		bankedSeconds,
		pausedAt,
		ticketID,
		false,
		startedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkAutoPaused(ctx context.Context, db *gorm.DB, ticketID snowflake.ID, startedAt, autoPausedAt time.Time, bankedSeconds int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE active_timers
		 SET auto_paused_at = ?, elapsed_seconds = ?, updated_at = ?
		 WHERE ticket_id = ? AND is_paused = ? AND auto_paused_at IS NULL AND started_at = ?`,
		autoPausedAt,
		bankedSeconds,
		autoPausedAt,
		ticketID,
		false,
		startedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkResumed(ctx context.Context, db *gorm.DB, ticketID snowflake.ID, resumedAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE active_timers
		 SET is_paused = ?, pause_time = NULL, started_at = ?, updated_at = ?
		 WHERE ticket_id = ? AND is_paused = ? AND pause_time IS NOT NULL`,
		false,
		resumedAt,
		resumedAt,
		ticketID,
		true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) NormalizeAutoPaused(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE active_timers
		 SET is_paused = ?, pause_time = auto_paused_at, auto_paused_at = NULL, updated_at = ?
		 WHERE ticket_id = ? AND auto_paused_at IS NOT NULL`,
		true,
		time.Now().UTC(),
		ticketID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeleteMatching(ctx context.Context, db *gorm.DB, snapshot *domain.ActiveTimer) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM active_timers
		 WHERE id = ? AND started_at = ? AND elapsed_seconds = ? AND is_paused = ?`,
		snapshot.ID,
		snapshot.StartedAt,
		snapshot.ElapsedSeconds,
		snapshot.IsPaused,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeleteByTicket(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM active_timers WHERE ticket_id = ?`,
		ticketID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.TimeEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO time_entries (
			id, ticket_id, user_id, start_time, end_time,
			duration_minutes, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TicketID,
		entry.UserID,
		entry.StartTime,
		entry.EndTime,
		entry.DurationMinutes,
		entry.Description,
		entry.CreatedAt,
	).Error
}
