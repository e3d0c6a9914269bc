package organization

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/organization/repository"
	"github.com/wasteflow/wasteflow/internal/organization/service"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
