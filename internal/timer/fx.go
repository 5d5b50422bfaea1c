package timer

import (
	"github.com/fixtrack/fixtrack/internal/timer/repository"
	"github.com/fixtrack/fixtrack/internal/timer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timer.coordinator",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
