package client

import "go.uber.org/fx"

// Module provides the HTTP clients for every external collaborator.
var Module = fx.Module("collaborators",
	fx.Provide(
		NewChargeProvider,
		NewCreativeStudio,
		NewFanout,
		NewNotifier,
	),
)
