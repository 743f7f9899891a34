package archivefx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ArchiveConfigProvider),
	fx.Provide(ObjectStore),
	fx.Provide(ArchiveService),
)
