// Example websocket echo server the example client can connect to.
package main

import (
	"github.com/gbdevw/gowsnode/echowsserver"
	"github.com/gbdevw/gowsnode/example/server/providers"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideEchoServer),
		// Use invoke to force the server to be instanciated and its hooks to be registered
		fx.Invoke(func(*echowsserver.EchoWebsocketServer) {}),
	).Run()
}
