package discord

import (
	"fmt"
	"strconv"
	"strings"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"
	"discord-render-bot/internal/usecase"

	"github.com/bwmarrin/discordgo"
)

const (
	colorNeutral = 0x5865f2
	colorSuccess = 0x57f287
	colorFailure = 0xed4245

	sharedPositiveLimit = 1000
	sharedNegativeLimit = 500
)

// draftEmbed renders the interactive form state.
func draftEmbed(d *model.Draft) *discordgo.MessageEmbed {
	positive := d.PositivePrompt
	if positive == "" {
		positive = "*(not set)*"
	}
	adapters := "none"
	if names := adapterNames(d.Adapters); len(names) > 0 {
		adapters = strings.Join(names, ", ")
	}
	return &discordgo.MessageEmbed{
		Title: "Image generation",
		Color: colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Model", Value: d.Model, Inline: true},
			{Name: "Sampler", Value: d.Sampler, Inline: true},
			{Name: "Scheduler", Value: d.Scheduler, Inline: true},
			{Name: "Steps", Value: strconv.Itoa(d.Steps), Inline: true},
			{Name: "CFG", Value: strconv.FormatFloat(d.CFG, 'g', -1, 64), Inline: true},
			{Name: "Seed", Value: strconv.FormatInt(d.Seed, 10), Inline: true},
			{Name: "Size", Value: string(d.Size), Inline: true},
			{Name: "Adapters", Value: adapters, Inline: true},
			{Name: "Positive prompt", Value: truncateText(positive, 1024)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Adjust below, then hit Generate."},
	}
}

func adapterNames(slots []model.AdapterSlot) []string {
	var names []string
	for _, a := range slots {
		if a.Empty() {
			continue
		}
		names = append(names, fmt.Sprintf("%s ×%g", a.Name, a.Strength))
	}
	return names
}

// resultEmbed is the public recap posted with the rendered images. The
// positive prompt stays hidden until the requester shares it.
func resultEmbed(summary adapter.JobSummary) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Render complete",
		Color: colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Model", Value: summary.Model, Inline: true},
			{Name: "Sampler", Value: summary.Sampler, Inline: true},
			{Name: "Scheduler", Value: summary.Scheduler, Inline: true},
			{Name: "Steps", Value: strconv.Itoa(summary.Steps), Inline: true},
			{Name: "CFG", Value: strconv.FormatFloat(summary.CFG, 'g', -1, 64), Inline: true},
			{Name: "Seed", Value: strconv.FormatInt(summary.Seed, 10), Inline: true},
			{Name: "Size", Value: summary.Size, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Prompt hidden — requester can reveal it with Share."},
	}
}

// policyEmbed is the red refusal listing matched banned entries in spoiler
// syntax.
func policyEmbed(matches []model.BannedWord) *discordgo.MessageEmbed {
	words := make([]string, len(matches))
	for i, m := range matches {
		words[i] = "||" + m.Word + "||"
	}
	return &discordgo.MessageEmbed{
		Title:       "Prompt blocked",
		Color:       colorFailure,
		Description: "Your prompt matched the banned-word list: " + strings.Join(words, ", "),
	}
}

func validationMessage(err *usecase.ValidationError) string {
	return fmt.Sprintf("Invalid %s: %s", err.Field, err.Message)
}

// sharedPromptFields rewrites a result embed in place to reveal the prompts.
func sharedPromptFields(embed *discordgo.MessageEmbed, positive, negative string) {
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Positive prompt", Value: truncateText(orDash(positive), sharedPositiveLimit)},
		&discordgo.MessageEmbedField{Name: "Negative prompt", Value: truncateText(orDash(negative), sharedNegativeLimit)},
	)
	embed.Footer = nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}
