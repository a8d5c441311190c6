package discord

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/usecase"

	"github.com/bwmarrin/discordgo"
)

// openPromptsModal shows the multi-field form: prompts plus the numeric
// fields that need free-text entry.
func (b *Bot) openPromptsModal(i *discordgo.InteractionCreate, positive, negative string, steps int, cfg float64, seed int64) error {
	return b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "modal:prompts",
			Title:    "Prompts & parameters",
			Components: []discordgo.MessageComponent{
				textRow("positive", "Positive prompt", positive, discordgo.TextInputParagraph, true),
				textRow("negative", "Negative prompt", negative, discordgo.TextInputParagraph, false),
				textRow("steps", "Steps (1-150)", strconv.Itoa(steps), discordgo.TextInputShort, true),
				textRow("cfg", "CFG (1-30)", strconv.FormatFloat(cfg, 'g', -1, 64), discordgo.TextInputShort, true),
				textRow("seed", "Seed (empty or \"random\" re-rolls)", strconv.FormatInt(seed, 10), discordgo.TextInputShort, false),
			},
		},
	})
}

// openStrengthModal edits adapter strengths as a comma-separated list, one
// value per selected slot.
func (b *Bot) openStrengthModal(i *discordgo.InteractionCreate) error {
	return b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "modal:strengths",
			Title:    "Adapter strengths",
			Components: []discordgo.MessageComponent{
				textRow("strengths", "Strengths, comma-separated (0.1-3.0)", "", discordgo.TextInputShort, true),
			},
		},
	})
}

func textRow(customID, label, value string, style discordgo.TextInputStyle, required bool) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID: customID,
			Label:    label,
			Value:    value,
			Style:    style,
			Required: required,
		},
	}}
}

func (b *Bot) dispatchModal(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	switch data.CustomID {
	case "modal:prompts":
		b.handlePromptsModal(ctx, i, data)
	case "modal:strengths":
		b.handleStrengthModal(ctx, i, data)
	}
}

func (b *Bot) handlePromptsModal(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	fields := modalValues(data)

	steps, err := usecase.ParseSteps(fields["steps"])
	if vErr := asValidation(err); vErr != nil {
		b.respondEphemeral(i, validationMessage(vErr))
		return
	}
	cfg, err := usecase.ParseCFG(fields["cfg"])
	if vErr := asValidation(err); vErr != nil {
		b.respondEphemeral(i, validationMessage(vErr))
		return
	}
	seed, err := usecase.ParseSeed(fields["seed"])
	if vErr := asValidation(err); vErr != nil {
		b.respondEphemeral(i, validationMessage(vErr))
		return
	}

	draft, err := b.facade.Drafts.Merge(requesterID(i), func(d *model.Draft) {
		d.PositivePrompt = strings.TrimSpace(fields["positive"])
		d.NegativePrompt = strings.TrimSpace(fields["negative"])
		d.Steps = steps
		d.CFG = cfg
		d.Seed = seed
	})
	if err != nil {
		b.respondSessionExpired(i)
		return
	}
	b.respondEphemeralEmbed(i, draftEmbed(draft), b.formComponents(draft))
}

func (b *Bot) handleStrengthModal(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	fields := modalValues(data)
	raw := strings.Split(fields["strengths"], ",")

	strengths := make([]float64, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			b.respondEphemeral(i, "Strengths must be numbers.")
			return
		}
		if err := usecase.ValidateAdapterStrength(f); err != nil {
			if vErr := asValidation(err); vErr != nil {
				b.respondEphemeral(i, validationMessage(vErr))
			}
			return
		}
		strengths = append(strengths, f)
	}

	draft, err := b.facade.Drafts.Merge(requesterID(i), func(d *model.Draft) {
		for idx := range d.Adapters {
			if idx < len(strengths) {
				d.Adapters[idx].Strength = strengths[idx]
			}
		}
	})
	if err != nil {
		b.respondSessionExpired(i)
		return
	}
	b.respondEphemeralEmbed(i, draftEmbed(draft), b.adapterComponents(draft))
}

func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	out := map[string]string{}
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if input, ok := c.(*discordgo.TextInput); ok {
				out[input.CustomID] = input.Value
			}
		}
	}
	return out
}

func asValidation(err error) *usecase.ValidationError {
	if err == nil {
		return nil
	}
	var vErr *usecase.ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	return &usecase.ValidationError{Field: "input", Message: err.Error()}
}
