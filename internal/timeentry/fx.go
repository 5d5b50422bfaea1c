package timeentry

import (
	"github.com/fixtrack/fixtrack/internal/timeentry/repository"
	"github.com/fixtrack/fixtrack/internal/timeentry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timeentry",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
