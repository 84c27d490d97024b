package providers

import (
	"context"
	"net/http"
	"os"

	"github.com/gbdevw/gowsnode/echowsserver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Environment variable which overrides the address the server listens on
const EnvServerAddr = "WSNODE_EX_SERVER_ADDR"

func ProvideEchoServer(lc fx.Lifecycle, logger *zap.Logger) *echowsserver.EchoWebsocketServer {
	// Listen on all interfaces on port 8081 by default
	addr := "0.0.0.0:8081"
	if value, ok := os.LookupEnv(EnvServerAddr); ok {
		addr = value
	}
	srv := echowsserver.NewEchoWebsocketServer(&http.Server{Addr: addr}, logger)
	// Register Start and Stop hooks to Start and Stop the server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop()
		},
	})
	return srv
}
