package billingsummary

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	"github.com/wasteflow/wasteflow/internal/billingsummary/service"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

var Module = fx.Module("billingsummary.service",
	fx.Provide(repository.ProvideStore[domain.BillingSummary]),
	fx.Provide(service.NewService),
)
