package discord

import (
	"bytes"
	"context"

	"discord-render-bot/internal/domain/ports/adapter"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

var _ adapter.ChatNotifier = (*Notifier)(nil)

// Notifier is the runner's outbound half of the gateway: public result and
// failure posts plus best-effort ephemeral updates via interaction tokens.
type Notifier struct {
	session *discordgo.Session
	appID   string
	log     *zerolog.Logger
}

func NewNotifier(session *discordgo.Session, appID string, logger *zerolog.Logger) *Notifier {
	nlog := logger.With().Str("component", "Notifier").Logger()
	return &Notifier{session: session, appID: appID, log: &nlog}
}

func (n *Notifier) PostResult(ctx context.Context, channelID, requesterID, jobID string, summary adapter.JobSummary, files []adapter.ResultFile, upscaleEnabled bool) error {
	msg := &discordgo.MessageSend{
		Content:    mention(requesterID),
		Embeds:     []*discordgo.MessageEmbed{resultEmbed(summary)},
		Files:      toDiscordFiles(files),
		Components: resultButtons(jobID, upscaleEnabled),
	}
	_, err := n.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return err
}

func (n *Notifier) PostUpscaleResult(ctx context.Context, channelID, requesterID, jobID string, files []adapter.ResultFile) error {
	msg := &discordgo.MessageSend{
		Content:    mention(requesterID) + " your upscale is ready.",
		Files:      toDiscordFiles(files),
		Components: upscaleButtons(jobID),
	}
	_, err := n.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return err
}

func (n *Notifier) PostFailure(ctx context.Context, channelID, requesterID, reason string) error {
	msg := &discordgo.MessageSend{
		Content: mention(requesterID),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Render failed",
			Color:       colorFailure,
			Description: reason,
		}},
	}
	_, err := n.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return err
}

// UpdateEphemeral edits the original interaction response through its token.
// Tokens expire after ~15 minutes; failures are the caller's to swallow.
func (n *Notifier) UpdateEphemeral(ctx context.Context, token, content string) error {
	_, err := n.session.WebhookMessageEdit(n.appID, token, "@original", &discordgo.WebhookEdit{
		Content: &content,
	}, discordgo.WithContext(ctx))
	return err
}

func toDiscordFiles(files []adapter.ResultFile) []*discordgo.File {
	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		out = append(out, &discordgo.File{
			Name:   f.Filename,
			Reader: bytes.NewReader(f.Data),
		})
	}
	return out
}
