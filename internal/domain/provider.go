package domain

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/config"
	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/domain/relay"
)

// ProvideCharacterService provides the character service.
func ProvideCharacterService(store character.Store, generator character.ProfileGenerator, log zerolog.Logger) character.Service {
	return character.NewService(store, generator, log)
}

// ProvideConversationService provides the conversation service.
func ProvideConversationService(store conversation.Store, characters character.Store, log zerolog.Logger) conversation.Service {
	return conversation.NewService(store, characters, log)
}

// ProvideConnectionService provides the connection lifecycle service.
func ProvideConnectionService(registry connection.Registry, hooks connection.Hooks, log zerolog.Logger) connection.Service {
	return connection.NewService(registry, hooks, log)
}

// ProvideRelayEngine provides the relay engine with the configured policies.
func ProvideRelayEngine(
	cfg *config.Config,
	store relay.Store,
	provider relay.CompletionProvider,
	sender relay.Sender,
	serializer relay.Serializer,
	observer relay.Observer,
	log zerolog.Logger,
) (*relay.Engine, error) {
	policy, err := relay.ParseDisconnectPolicy(cfg.RelayDisconnectPolicy)
	if err != nil {
		return nil, err
	}
	return relay.NewEngine(
		relay.EngineConfig{
			HistoryLimit:     cfg.RelayHistoryLimit,
			MaxContentLength: cfg.RelayMaxContentLength,
			DisconnectPolicy: policy,
		},
		store,
		provider,
		sender,
		log,
		relay.WithSerializer(serializer),
		relay.WithObserver(observer),
	), nil
}

// ServiceProvider provides all domain services.
var ServiceProvider = wire.NewSet(
	ProvideCharacterService,
	ProvideConversationService,
	ProvideConnectionService,
	ProvideRelayEngine,
)
