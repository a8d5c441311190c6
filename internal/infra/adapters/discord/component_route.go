package discord

import (
	"context"
	"errors"
	"fmt"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/usecase"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) dispatchComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	parts := customIDParts(i.MessageComponentData().CustomID)
	if len(parts) < 2 {
		return
	}
	kind, action := parts[0], parts[1]
	arg := ""
	if len(parts) > 2 {
		arg = parts[2]
	}

	switch kind {
	case "draft":
		b.handleDraftComponent(ctx, i, action)
	case "result":
		b.handleResultComponent(ctx, i, action, arg)
	case "upscale":
		if action == "delete" {
			b.handleDelete(ctx, i, arg, true)
		}
	}
}

func (b *Bot) handleDraftComponent(ctx context.Context, i *discordgo.InteractionCreate, action string) {
	requester := requesterID(i)

	switch action {
	case "model", "sampler", "scheduler", "size":
		values := i.MessageComponentData().Values
		if len(values) == 0 {
			return
		}
		draft, err := b.facade.Drafts.Merge(requester, func(d *model.Draft) {
			switch action {
			case "model":
				d.Model = values[0]
			case "sampler":
				d.Sampler = values[0]
			case "scheduler":
				d.Scheduler = values[0]
			case "size":
				d.Size = model.Size(values[0])
			}
		})
		if err != nil {
			b.respondSessionExpired(i)
			return
		}
		b.updateMessage(i, draftEmbed(draft), b.formComponents(draft))

	case "adapters":
		draft, err := b.facade.Drafts.Get(requester)
		if err != nil {
			b.respondSessionExpired(i)
			return
		}
		b.respondEphemeralEmbed(i, &discordgo.MessageEmbed{
			Title:       "Adapters",
			Color:       colorNeutral,
			Description: "Pick up to 4 adapters. Trigger words are appended to your positive prompt automatically.",
		}, b.adapterComponents(draft))

	case "adapterpick":
		values := i.MessageComponentData().Values
		for _, name := range values {
			if !b.facade.Catalog.HasAdapter(name) {
				b.respondEphemeral(i, fmt.Sprintf("Unknown adapter %q.", name))
				return
			}
		}
		// Trigger words are resolved at selection time and carried in the
		// draft; bind reads them from there.
		slots := make([]model.AdapterSlot, 0, len(values))
		for _, name := range values {
			slots = append(slots, model.AdapterSlot{
				Name:         name,
				Strength:     1.0,
				TriggerWords: b.facade.Metadata.TriggerWords(ctx, name),
			})
		}
		draft, err := b.facade.Drafts.Merge(requester, func(d *model.Draft) {
			d.Adapters = slots
		})
		if err != nil {
			b.respondSessionExpired(i)
			return
		}
		b.updateMessage(i, draftEmbed(draft), b.adapterComponents(draft))

	case "prompts":
		draft, err := b.facade.Drafts.Get(requester)
		if err != nil {
			b.respondSessionExpired(i)
			return
		}
		if err := b.openPromptsModal(i, draft.PositivePrompt, draft.NegativePrompt, draft.Steps, draft.CFG, draft.Seed); err != nil {
			b.log.Warn().Err(err).Msg("failed to open prompts modal")
		}

	case "strengths":
		if _, err := b.facade.Drafts.Get(requester); err != nil {
			b.respondSessionExpired(i)
			return
		}
		if err := b.openStrengthModal(i); err != nil {
			b.log.Warn().Err(err).Msg("failed to open strength modal")
		}

	case "generate":
		b.handleGenerate(ctx, i)
	}
}

func (b *Bot) handleGenerate(ctx context.Context, i *discordgo.InteractionCreate) {
	origin := usecase.Origin{ScopeID: i.GuildID, ChannelID: i.ChannelID}
	job, position, err := b.facade.GenerationUC.Submit(ctx, requesterID(i), origin, i.Token)
	if err != nil {
		var vErr *usecase.ValidationError
		var pErr *usecase.PolicyError
		switch {
		case errors.Is(err, domain.ErrSessionExpired):
			b.respondSessionExpired(i)
		case errors.As(err, &vErr):
			b.respondEphemeral(i, validationMessage(vErr))
		case errors.As(err, &pErr):
			b.respondEphemeralEmbed(i, policyEmbed(pErr.Matches), nil)
		case errors.Is(err, domain.ErrBindFailed):
			b.respondEphemeral(i, "The generation template is broken: "+err.Error())
		default:
			b.log.Error().Err(err).Msg("submit failed")
			b.respondEphemeral(i, "Something went wrong; please try again.")
		}
		return
	}

	content := fmt.Sprintf("Queued at position %d. You'll be pinged when it's done.", position+1)
	b.updateMessage(i, &discordgo.MessageEmbed{
		Title:       "Queued",
		Color:       colorNeutral,
		Description: content,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Job " + job.ID},
	}, nil)
}

func (b *Bot) handleResultComponent(ctx context.Context, i *discordgo.InteractionCreate, action, jobID string) {
	requester := requesterID(i)

	switch action {
	case "share":
		job, err := b.facade.GenerationUC.Job(ctx, jobID)
		if err != nil {
			b.respondEphemeral(i, "That job is no longer on record.")
			return
		}
		if job.RequesterID != requester {
			b.respondEphemeral(i, "Only the requester can share the prompt.")
			return
		}
		if i.Message == nil || len(i.Message.Embeds) == 0 {
			return
		}
		embed := i.Message.Embeds[0]
		sharedPromptFields(embed, job.PositivePrompt, job.NegativePrompt)
		b.updateMessage(i, embed, componentRows(i.Message.Components))

	case "reroll":
		_, err := b.facade.GenerationUC.Reroll(ctx, jobID, requester, i.Token)
		switch {
		case errors.Is(err, domain.ErrNotAllowed):
			b.respondEphemeral(i, "Only the requester can re-roll.")
		case errors.Is(err, domain.ErrNotFound):
			b.respondEphemeral(i, "That job is no longer on record.")
		case err != nil:
			b.respondEphemeral(i, "Re-roll failed; please try again.")
		default:
			b.respondEphemeral(i, "Re-rolling with a fresh seed.")
		}

	case "edit":
		draft, err := b.facade.GenerationUC.EditDraft(ctx, jobID, requester)
		switch {
		case errors.Is(err, domain.ErrNotAllowed):
			b.respondEphemeral(i, "Only the requester can edit.")
		case errors.Is(err, domain.ErrNotFound):
			b.respondEphemeral(i, "That job is no longer on record.")
		case err != nil:
			b.respondEphemeral(i, "Edit failed; please try again.")
		default:
			b.respondEphemeralEmbed(i, draftEmbed(draft), b.formComponents(draft))
		}

	case "upscale":
		if !b.upscaleEnabled {
			b.respondEphemeral(i, "Upscaling is not enabled.")
			return
		}
		origin := usecase.Origin{ScopeID: i.GuildID, ChannelID: i.ChannelID}
		_, err := b.facade.UpscaleUC.Submit(ctx, jobID, requester, origin, i.Token)
		switch {
		case errors.Is(err, domain.ErrNotAllowed):
			b.respondEphemeral(i, "Only the requester can upscale.")
		case errors.Is(err, domain.ErrNotFound):
			b.respondEphemeral(i, "That job is no longer on record.")
		case err != nil:
			b.log.Warn().Err(err).Str("job_id", jobID).Msg("upscale submit failed")
			b.respondEphemeral(i, "Upscale failed; please try again.")
		default:
			b.respondEphemeral(i, "Upscale queued.")
		}

	case "delete":
		b.handleDelete(ctx, i, jobID, false)
	}
}

// handleDelete removes the result message. Allowed for moderators
// (manage-messages) and the owner on every result message; the requester is
// additionally allowed on generation results only. On upscale results the
// requester is not looked up, so a requester without manage-messages is
// refused there.
func (b *Bot) handleDelete(ctx context.Context, i *discordgo.InteractionCreate, jobID string, upscale bool) {
	requester := requesterID(i)
	allowed := requester == b.cfg.OwnerID
	if !allowed && i.Member != nil {
		allowed = i.Member.Permissions&discordgo.PermissionManageMessages != 0
	}
	if !allowed && !upscale {
		if job, err := b.facade.GenerationUC.Job(ctx, jobID); err == nil {
			allowed = job.RequesterID == requester
		}
	}
	if !allowed {
		b.respondEphemeral(i, "You can't delete this message.")
		return
	}
	if i.Message != nil {
		if err := b.session.ChannelMessageDelete(i.ChannelID, i.Message.ID); err != nil {
			b.log.Debug().Err(err).Msg("message delete failed")
		}
	}
	b.respondEphemeral(i, "Deleted.")
}

func (b *Bot) respondSessionExpired(i *discordgo.InteractionCreate) {
	b.respondEphemeral(i, "Session expired — reissue /dream to start over.")
}

// componentRows copies a message's components unchanged into a fresh slice
// for the update call.
func componentRows(components []discordgo.MessageComponent) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, len(components))
	rows = append(rows, components...)
	return rows
}

// formComponents renders the dropdown rows and action buttons for a draft.
func (b *Bot) formComponents(d *model.Draft) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		selectRow("draft:model", "Model", b.facade.Catalog.Models, d.Model),
		selectRow("draft:sampler", "Sampler", b.facade.Catalog.Samplers, d.Sampler),
		selectRow("draft:scheduler", "Scheduler", b.facade.Catalog.Schedulers, d.Scheduler),
		selectRow("draft:size", "Size", []string{
			string(model.SizePortrait), string(model.SizeSquare), string(model.SizeLandscape),
		}, string(d.Size)),
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Edit prompts", Style: discordgo.SecondaryButton, CustomID: "draft:prompts"},
			discordgo.Button{Label: "Adapters", Style: discordgo.SecondaryButton, CustomID: "draft:adapters"},
			discordgo.Button{Label: "Generate", Style: discordgo.PrimaryButton, CustomID: "draft:generate"},
		}},
	}
}

func (b *Bot) adapterComponents(d *model.Draft) []discordgo.MessageComponent {
	options := make([]discordgo.SelectMenuOption, 0, len(b.facade.Catalog.Adapters))
	selected := map[string]bool{}
	for _, a := range d.Adapters {
		selected[a.Name] = true
	}
	// The widget caps select options at 25; the catalog may carry 100.
	for _, name := range b.facade.Catalog.Adapters {
		if len(options) == 25 {
			break
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:   truncateText(name, 100),
			Value:   name,
			Default: selected[name],
		})
	}
	minValues := 0
	maxValues := model.MaxAdapterSlots
	if len(options) < maxValues {
		maxValues = len(options)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    "draft:adapterpick",
				Placeholder: "Adapters",
				MinValues:   &minValues,
				MaxValues:   maxValues,
				Options:     options,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Set strengths", Style: discordgo.SecondaryButton, CustomID: "draft:strengths"},
			discordgo.Button{Label: "Generate", Style: discordgo.PrimaryButton, CustomID: "draft:generate"},
		}},
	}
}

func selectRow(customID, placeholder string, values []string, current string) discordgo.MessageComponent {
	options := make([]discordgo.SelectMenuOption, 0, len(values))
	for _, v := range values {
		options = append(options, discordgo.SelectMenuOption{
			Label:   truncateText(v, 100),
			Value:   v,
			Default: v == current,
		})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{CustomID: customID, Placeholder: placeholder, Options: options},
	}}
}

// resultButtons builds the action row attached to a public result post.
func resultButtons(jobID string, upscaleEnabled bool) []discordgo.MessageComponent {
	buttons := []discordgo.MessageComponent{
		discordgo.Button{Label: "Share prompt", Style: discordgo.SecondaryButton, CustomID: "result:share:" + jobID},
		discordgo.Button{Label: "Re-roll", Style: discordgo.PrimaryButton, CustomID: "result:reroll:" + jobID},
		discordgo.Button{Label: "Edit", Style: discordgo.SecondaryButton, CustomID: "result:edit:" + jobID},
	}
	if upscaleEnabled {
		buttons = append(buttons, discordgo.Button{Label: "Upscale", Style: discordgo.SecondaryButton, CustomID: "result:upscale:" + jobID})
	}
	buttons = append(buttons, discordgo.Button{Label: "Delete", Style: discordgo.DangerButton, CustomID: "result:delete:" + jobID})
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func upscaleButtons(jobID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "Delete", Style: discordgo.DangerButton, CustomID: "upscale:delete:" + jobID},
	}}}
}
