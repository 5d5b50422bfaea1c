package audit

import (
	"github.com/fixtrack/fixtrack/internal/audit/repository"
	"github.com/fixtrack/fixtrack/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.sink",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
