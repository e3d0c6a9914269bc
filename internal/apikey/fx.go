package apikey

import (
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/apikey/repository"
	"github.com/wasteflow/wasteflow/internal/apikey/service"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
