package migration

import (
	"strings"

	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/internal/config"
	ticketdomain "github.com/fixtrack/fixtrack/internal/ticket/domain"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres deployments (sqlite for local runs, mysql) derive
		// the schema from the models instead of the SQL files.
		return conn.AutoMigrate(
			&ticketdomain.RepairTicket{},
			&timerdomain.ActiveTimer{},
			&timerdomain.TimeEntry{},
			&auditdomain.AuditEvent{},
		)
	}),
)
