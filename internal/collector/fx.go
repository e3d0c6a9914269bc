package collector

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/collector/domain"
	"github.com/wasteflow/wasteflow/internal/collector/service"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

var Module = fx.Module("collector.service",
	fx.Provide(repository.ProvideStore[domain.Collector]),
	fx.Provide(repository.ProvideStore[domain.Store]),
	fx.Provide(service.NewService),
)
