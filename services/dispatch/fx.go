package dispatch

import "go.uber.org/fx"

// Module is the HTTP gateway: router, handlers, and the server lifecycle.
var Module = fx.Module("dispatch.module",
	fx.Provide(NewHandler, NewRouter, NewHttpServer),
	fx.Invoke(Run),
)

// Worker hosts the sweep loop and the queue consumers that reopen due posts.
var Worker = fx.Module("dispatch.worker",
	fx.Provide(NewTaskHandler, NewSweeper),
	fx.Invoke(registerTaskHandlers, StartSweeper),
)
