//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/config"
	"github.com/janhq/companion-relay/internal/domain"
	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/infrastructure/auth"
	"github.com/janhq/companion-relay/internal/infrastructure/inference"
	"github.com/janhq/companion-relay/internal/infrastructure/observability"
	"github.com/janhq/companion-relay/internal/infrastructure/wsrelay"
	"github.com/janhq/companion-relay/internal/interfaces"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver"
)

// ProviderSet is the wire provider set for the HTTP surface.
var ProviderSet = wire.NewSet(
	// Infrastructure providers
	auth.NewValidator,
	ProvideCompletionProvider,
	ProvideSanitizer,
	ProvideHub,
	ProvideConnectionHooks,
	ProvideRelayHandler,
	observability.NewRelayObserver,

	wire.Bind(new(relay.Store), new(ChatStore)),
	wire.Bind(new(conversation.Store), new(ChatStore)),
	wire.Bind(new(character.Store), new(ChatStore)),
	wire.Bind(new(httpserver.Pinger), new(ChatStore)),
	wire.Bind(new(relay.CompletionProvider), new(*inference.Provider)),
	wire.Bind(new(character.ProfileGenerator), new(*inference.Provider)),
	wire.Bind(new(relay.Sender), new(*wsrelay.Hub)),
	wire.Bind(new(relay.Observer), new(*observability.RelayObserver)),

	// Domain providers
	domain.ServiceProvider,

	// Interface providers
	interfaces.InterfacesProvider,
)

// CreateHTTPServer wires the HTTP surface on top of an opened store, registry and serializer.
func CreateHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	log zerolog.Logger,
	chatStore ChatStore,
	registry connection.Registry,
	serializer relay.Serializer,
) (*httpserver.HTTPServer, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
