package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

//go:generate mockgen -destination=mocks/mock_session.go -package=mocks github.com/mattjoyce/mathbot/internal/bot Session

// Session is the part of the Discord gateway/REST client the bot uses.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	BulkOverwriteCommands(appID, guildID string, cmds []*discordgo.ApplicationCommand) error
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) error
}

// discordSession adapts *discordgo.Session to Session.
type discordSession struct {
	s *discordgo.Session
}

// NewSession creates a gateway session for token. Message content intent is
// requested only when prefix commands are enabled, since it is privileged.
func NewSession(token string, prefixCommands bool) (Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents(prefixCommands)
	return &discordSession{s: s}, nil
}

// Intents returns the gateway intents the bot needs.
func Intents(prefixCommands bool) discordgo.Intent {
	intents := discordgo.IntentsAllWithoutPrivileged
	if prefixCommands {
		intents |= discordgo.IntentMessageContent
	}
	return intents
}

func (d *discordSession) AddHandler(handler interface{}) func() {
	return d.s.AddHandler(handler)
}

func (d *discordSession) Open() error  { return d.s.Open() }
func (d *discordSession) Close() error { return d.s.Close() }

func (d *discordSession) BulkOverwriteCommands(appID, guildID string, cmds []*discordgo.ApplicationCommand) error {
	_, err := d.s.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	return err
}

func (d *discordSession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return d.s.InteractionRespond(i, resp)
}

func (d *discordSession) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := d.s.InteractionResponseEdit(i, edit)
	return err
}

func (d *discordSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) error {
	_, err := d.s.ChannelMessageSendComplex(channelID, data)
	return err
}
