package settlement

import (
	"github.com/bigapple/fleetops/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(service.New),
)
