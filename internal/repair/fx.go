package repair

import (
	"github.com/bigapple/fleetops/internal/repair/service"
	"go.uber.org/fx"
)

var Module = fx.Module("repair.service",
	fx.Provide(service.New),
)
