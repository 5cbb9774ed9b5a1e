package fleet

import (
	"github.com/bigapple/fleetops/internal/fleet/repository"
	"github.com/bigapple/fleetops/internal/fleet/resolver"
	"go.uber.org/fx"
)

var Module = fx.Module("fleet",
	fx.Provide(repository.Provide),
	fx.Provide(resolver.New),
)
