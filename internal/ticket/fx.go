package ticket

import (
	"github.com/fixtrack/fixtrack/internal/ticket/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket.aggregate",
	fx.Provide(repository.Provide),
)
