package application

import (
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/infra/metadata"
	"discord-render-bot/internal/infra/sched"
	"discord-render-bot/internal/infra/session"
	"discord-render-bot/internal/usecase"
)

// BotFacade bundles everything the chat adapter needs behind one door, the
// same way the command routes only ever see a facade.
type BotFacade struct {
	GenerationUC *usecase.GenerationUseCase
	UpscaleUC    *usecase.UpscaleUseCase
	ModerationUC *usecase.ModerationUseCase

	Drafts   *session.DraftStore
	Catalog  *model.NodeCatalog
	Metadata *metadata.Cache
	Purge    *sched.PurgeWorker
}

func NewBotFacade(
	generationUC *usecase.GenerationUseCase,
	upscaleUC *usecase.UpscaleUseCase,
	moderationUC *usecase.ModerationUseCase,
	drafts *session.DraftStore,
	catalog *model.NodeCatalog,
	metadataCache *metadata.Cache,
	purge *sched.PurgeWorker,
) *BotFacade {
	return &BotFacade{
		GenerationUC: generationUC,
		UpscaleUC:    upscaleUC,
		ModerationUC: moderationUC,
		Drafts:       drafts,
		Catalog:      catalog,
		Metadata:     metadataCache,
		Purge:        purge,
	}
}
