package commissionrule

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/cache"
	"github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	"github.com/wasteflow/wasteflow/internal/commissionrule/service"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

var Module = fx.Module("commissionrule.service",
	fx.Provide(repository.ProvideStore[domain.CommissionRule]),
	fx.Provide(cache.NewDefaultsCache),
	fx.Provide(service.NewService),
)
