// Example client which runs a short scenario (echo, ping/pong, read timeout) against a
// websocket echo server, through the configured chain of nodes.
package main

import (
	"github.com/gbdevw/gowsnode/example/client/configuration"
	"github.com/gbdevw/gowsnode/example/client/providers"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideTracerProvider),
		fx.Provide(providers.ProvideDemo),
		// Use invoke to force dependencies to be instanciated and hooks to be registered
		fx.Invoke(providers.RunDemo),
	).Run()
}
