package collection

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/collection/domain"
	"github.com/wasteflow/wasteflow/internal/collection/service"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

var Module = fx.Module("collection.service",
	fx.Provide(repository.ProvideStore[domain.CollectionRecord]),
	fx.Provide(service.NewService),
)
