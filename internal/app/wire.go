//go:build wireinject

package app

import (
	"github.com/google/wire"

	"stockwatch/internal/config"
)

func buildAppWithWire(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		provideRegistry,
		provideMetrics,
		provideProfiles,
		provideBaseOptions,
		provideRunner,
		provideBarStore,
		provideRunStore,
		provideServer,
		provideApp,
	)
	return nil, nil, nil
}
