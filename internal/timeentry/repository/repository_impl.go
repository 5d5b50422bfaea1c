package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/timeentry/domain"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*timerdomain.TimeEntry, error) {
	var entry timerdomain.TimeEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, ticket_id, user_id, start_time, end_time,
		        duration_minutes, description, created_at
		 FROM time_entries WHERE id = ?`,
		id,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*timerdomain.TimeEntry, error) {
	var entries []*timerdomain.TimeEntry
	stmt := db.WithContext(ctx).Model(&timerdomain.TimeEntry{})

	if filter.TicketID != 0 {
		stmt = stmt.Where("ticket_id = ?", filter.TicketID)
	}
	if filter.UserID != 0 {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM time_entries WHERE id = ?`, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
