package main

import (
	"github.com/rs/zerolog/log"

	chatx "github.com/socialscribe/scribe/chat"
	credentialx "github.com/socialscribe/scribe/crm/credential"
	providerx "github.com/socialscribe/scribe/crm/provider"
	hubspotx "github.com/socialscribe/scribe/crm/provider/hubspot"
	salesforcex "github.com/socialscribe/scribe/crm/provider/salesforce"
	resolverx "github.com/socialscribe/scribe/crm/resolver"
	suggestx "github.com/socialscribe/scribe/crm/suggest"
	tokenx "github.com/socialscribe/scribe/crm/token"
	configx "github.com/socialscribe/scribe/pkg/config"
	geminix "github.com/socialscribe/scribe/pkg/gemini"
	logx "github.com/socialscribe/scribe/pkg/logger"
)

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	dbCfg := configx.MustNew[credentialx.Config]("POSTGRES")
	credentials, err := credentialx.NewStore(*dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("credential store init failed")
	}

	guardian, err := tokenx.NewGuardian(credentials)
	if err != nil {
		log.Fatal().Err(err).Msg("token guardian init failed")
	}

	registry := providerx.NewRegistry()
	registry.Register(tokenx.Guard(guardian, hubspotx.MustNew(*configx.MustNew[hubspotx.Config]("HUBSPOT"))))
	registry.Register(tokenx.Guard(guardian, salesforcex.MustNew(*configx.MustNew[salesforcex.Config]("SALESFORCE"))))

	search, err := resolverx.New(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("resolver init failed")
	}

	assistant := geminix.MustNew(*configx.MustNew[geminix.Config]("GEMINI"))

	engine, err := suggestx.NewEngine(registry, assistant)
	if err != nil {
		log.Fatal().Err(err).Msg("suggestion engine init failed")
	}
	_ = engine

	// Conversation history is optional; without Upstash the orchestrator
	// runs stateless.
	var history chatx.HistoryStore
	if upstashCfg, err := configx.New[chatx.UpstashConfig]("UPSTASH_REDIS"); err == nil {
		if store, err := chatx.NewUpstashHistoryStore(*upstashCfg); err == nil {
			history = store
		}
	}

	orchestrator, err := chatx.New(search, registry, assistant, history)
	if err != nil {
		log.Fatal().Err(err).Msg("chat orchestrator init failed")
	}
	_ = orchestrator

	log.Info().
		Strs("providers", providerTags(registry)).
		Msg("social scribe crm core ready")
}

func providerTags(registry *providerx.Registry) []string {
	providers := registry.Providers()
	tags := make([]string, 0, len(providers))
	for _, p := range providers {
		tags = append(tags, string(p))
	}
	return tags
}
