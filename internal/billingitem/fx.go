package billingitem

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/billingitem/service"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

var Module = fx.Module("billingitem.service",
	fx.Provide(repository.ProvideStore[domain.BillingItem]),
	fx.Provide(service.NewService),
)
