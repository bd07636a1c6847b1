package billing

import (
	"github.com/smallbiznis/martpos/internal/billing/repository"
	"github.com/smallbiznis/martpos/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
