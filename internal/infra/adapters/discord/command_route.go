package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"

	"github.com/bwmarrin/discordgo"
)

// handleDream is the entry command: init a draft and open the prompts modal.
func (b *Bot) handleDream(ctx context.Context, i *discordgo.InteractionCreate) {
	if !b.channelAllowed(i.ChannelID) {
		b.respondEphemeral(i, "Image generation is not available in this channel.")
		return
	}

	requester := requesterID(i)
	b.facade.Drafts.Init(requester, b.facade.Catalog)
	draft, _ := b.facade.Drafts.Merge(requester, func(d *model.Draft) {
		if d.NegativePrompt == "" {
			d.NegativePrompt = b.defaultNegative
		}
	})

	if err := b.openPromptsModal(i, draft.PositivePrompt, draft.NegativePrompt, draft.Steps, draft.CFG, draft.Seed); err != nil {
		b.log.Warn().Err(err).Msg("failed to open prompts modal")
	}
}

func (b *Bot) handleBanned(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]

	switch sub.Name {
	case "add":
		word := sub.Options[0].StringValue()
		partial := false
		if len(sub.Options) > 1 {
			partial = sub.Options[1].BoolValue()
		}
		err := b.facade.ModerationUC.Add(ctx, word, partial, requesterID(i))
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			b.respondEphemeral(i, fmt.Sprintf("%q is already banned.", word))
		case err != nil:
			b.respondEphemeral(i, "Failed to add banned word.")
		default:
			b.respondEphemeral(i, fmt.Sprintf("Banned %q (partial=%t).", word, partial))
		}

	case "remove":
		word := sub.Options[0].StringValue()
		err := b.facade.ModerationUC.Remove(ctx, word)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			b.respondEphemeral(i, fmt.Sprintf("%q is not banned.", word))
		case err != nil:
			b.respondEphemeral(i, "Failed to remove banned word.")
		default:
			b.respondEphemeral(i, fmt.Sprintf("Unbanned %q.", word))
		}

	case "list":
		words, err := b.facade.ModerationUC.List(ctx)
		if err != nil {
			b.respondEphemeral(i, "Failed to list banned words.")
			return
		}
		if len(words) == 0 {
			b.respondEphemeral(i, "No banned words.")
			return
		}
		var sb strings.Builder
		for _, w := range words {
			mode := "whole-word"
			if w.Partial {
				mode = "partial"
			}
			fmt.Fprintf(&sb, "- ||%s|| (%s)\n", w.Word, mode)
		}
		b.respondEphemeral(i, sb.String())
	}
}

func (b *Bot) handlePurge(ctx context.Context, i *discordgo.InteractionCreate) {
	var maxAge time.Duration
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "hours" {
			maxAge = time.Duration(opt.IntValue()) * time.Hour
		}
	}
	jobs, upscales, err := b.facade.Purge.Tick(ctx, maxAge)
	if err != nil {
		b.respondEphemeral(i, "Purge failed: "+err.Error())
		return
	}
	b.respondEphemeral(i, fmt.Sprintf("Purged %d jobs and %d upscales.", jobs, upscales))
}
