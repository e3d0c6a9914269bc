package audit

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/audit/repository"
	"github.com/wasteflow/wasteflow/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
