package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"discord-render-bot/internal/application"
	"discord-render-bot/internal/config"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Bot wires the chat gateway to the facade: slash commands open the form,
// components mutate the draft, modals validate, and the generate button
// hands off to the queue.
type Bot struct {
	session *discordgo.Session
	cfg     *config.BotConfig
	facade  *application.BotFacade
	log     *zerolog.Logger

	upscaleEnabled  bool
	defaultNegative string
	allowedChannels map[string]struct{}
}

func NewBot(cfg *config.BotConfig, facade *application.BotFacade, upscaleEnabled bool, defaultNegative string, logger *zerolog.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}

	allowed := map[string]struct{}{}
	for _, id := range cfg.AllowedChannelIDs {
		allowed[id] = struct{}{}
	}

	blog := logger.With().Str("component", "DiscordBot").Logger()
	return &Bot{
		session:         session,
		cfg:             cfg,
		facade:          facade,
		log:             &blog,
		upscaleEnabled:  upscaleEnabled,
		defaultNegative: defaultNegative,
		allowedChannels: allowed,
	}, nil
}

// Session exposes the underlying gateway for the result notifier.
func (b *Bot) Session() *discordgo.Session { return b.session }

// SetFacade finishes wiring; the facade depends on the runner, which needs
// the session this bot owns, so construction is two-phase.
func (b *Bot) SetFacade(facade *application.BotFacade) { b.facade = facade }

// Start opens the gateway and registers the guild commands.
func (b *Bot) Start(ctx context.Context) error {
	if b.facade == nil {
		return errors.New("bot facade not set")
	}
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.dispatch(ctx, i)
	})
	b.session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return fmt.Errorf("register commands: %w", err)
	}
	b.log.Info().Msg("discord gateway connected")
	return nil
}

func (b *Bot) Stop() {
	if err := b.session.Close(); err != nil {
		b.log.Warn().Err(err).Msg("gateway close failed")
	}
}

func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "dream",
			Description: "Open the image generation form",
		},
		{
			Name:        "banned",
			Description: "Manage the banned-word list (owner only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a banned word",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "word", Description: "The word", Required: true},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "partial", Description: "Match as substring", Required: false},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a banned word",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "word", Description: "The word", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List banned words",
				},
			},
		},
		{
			Name:        "purge",
			Description: "Run the retention purge now (owner only)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "hours", Description: "Age override in hours", Required: false},
			},
		},
	}
	_, err := b.session.ApplicationCommandBulkOverwrite(b.cfg.AppID, b.cfg.ScopeID, commands)
	return err
}

// dispatch is pure routing: every event maps to one handler.
func (b *Bot) dispatch(ctx context.Context, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("interaction handler panicked")
		}
	}()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		switch data.Name {
		case "dream":
			b.handleDream(ctx, i)
		case "banned":
			b.ownerOnly(b.handleBanned)(ctx, i)
		case "purge":
			b.ownerOnly(b.handlePurge)(ctx, i)
		}
	case discordgo.InteractionMessageComponent:
		b.dispatchComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		b.dispatchModal(ctx, i)
	}
}

type interactionHandler func(ctx context.Context, i *discordgo.InteractionCreate)

func (b *Bot) ownerOnly(next interactionHandler) interactionHandler {
	return func(ctx context.Context, i *discordgo.InteractionCreate) {
		if requesterID(i) != b.cfg.OwnerID {
			b.respondEphemeral(i, "You are not allowed to use this command.")
			return
		}
		next(ctx, i)
	}
}

func requesterID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) channelAllowed(channelID string) bool {
	_, ok := b.allowedChannels[channelID]
	return ok
}

func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Debug().Err(err).Msg("ephemeral respond failed")
	}
}

func (b *Bot) respondEphemeralEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Debug().Err(err).Msg("ephemeral embed respond failed")
	}
}

// updateMessage edits the component message the interaction came from.
func (b *Bot) updateMessage(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	if err != nil {
		b.log.Debug().Err(err).Msg("message update failed")
	}
}

func mention(userID string) string { return "<@" + userID + ">" }

// customIDParts splits "kind:action:arg" custom ids.
func customIDParts(id string) []string { return strings.SplitN(id, ":", 3) }
