// Package bot connects the command dispatcher to the Discord gateway.
//
// Slash commands are acknowledged with a deferred response straight away and
// completed with an edit once the handler returns, so renders slower than
// Discord's three second acknowledgement window still reach the user. Prefix
// commands ("~math x^2") are answered with a reply in the same channel.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/dispatch"
	"github.com/mattjoyce/mathbot/internal/log"
)

// maxMessageLen is Discord's message content limit in characters.
const maxMessageLen = 2000

// Dispatcher runs command invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv command.Invocation) (command.Reply, error)
	Registry() *command.Registry
}

// Options configures gateway behaviour.
type Options struct {
	// GuildID registers commands to one guild instead of globally.
	GuildID string
	// Prefix enables text commands. Empty disables them.
	Prefix string
	// RegisterCommands overwrites the application's commands on ready.
	RegisterCommands bool
}

// Bot serves the dispatcher's commands over a Discord session.
type Bot struct {
	session    Session
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger

	// ctx is the Run context; gateway callbacks carry none of their own.
	ctx context.Context
}

func New(session Session, d Dispatcher, opts Options) *Bot {
	return &Bot{
		session:    session,
		dispatcher: d,
		opts:       opts,
		logger:     log.WithComponent("bot"),
		ctx:        context.Background(),
	}
}

// Run opens the gateway and serves commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteractionCreate)
	if b.opts.Prefix != "" {
		b.session.AddHandler(b.onMessageCreate)
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	b.logger.Info("discord session opened", "prefix_commands", b.opts.Prefix != "")

	<-ctx.Done()

	b.logger.Info("closing discord session")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return ctx.Err()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	user := ""
	if r.User != nil {
		user = r.User.Username
	}
	b.logger.Info("discord ready", "user", user, "guilds", len(r.Guilds))

	if !b.opts.RegisterCommands {
		return
	}
	appID := applicationID(r)
	if appID == "" {
		b.logger.Error("cannot register commands: ready event carries no application id")
		return
	}

	cmds := ApplicationCommands(b.dispatcher.Registry())
	if err := b.session.BulkOverwriteCommands(appID, b.opts.GuildID, cmds); err != nil {
		b.logger.Error("failed to register commands", "error", err, "guild_id", b.opts.GuildID)
		return
	}
	scope := "global"
	if b.opts.GuildID != "" {
		scope = "guild"
	}
	b.logger.Info("registered commands", "count", len(cmds), "scope", scope)
}

func applicationID(r *discordgo.Ready) string {
	if r.Application != nil && r.Application.ID != "" {
		return r.Application.ID
	}
	if r.User != nil {
		return r.User.ID
	}
	return ""
}

// ApplicationCommands converts the registry to slash command definitions.
func ApplicationCommands(reg *command.Registry) []*discordgo.ApplicationCommand {
	descs := reg.All()
	out := make([]*discordgo.ApplicationCommand, 0, len(descs))
	for _, d := range descs {
		ac := &discordgo.ApplicationCommand{
			Name:        d.Name,
			Description: d.Description,
		}
		for _, p := range d.Params {
			ac.Options = append(ac.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        p.Name,
				Description: p.Description,
				Required:    p.Required,
			})
		}
		out = append(out, ac)
	}
	return out
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	interaction := ic.Interaction
	data := interaction.ApplicationCommandData()

	args := make(map[string]string, len(data.Options))
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			args[opt.Name] = opt.StringValue()
		}
	}

	if err := b.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.logger.Error("failed to acknowledge interaction", "command", data.Name, "error", err)
		return
	}

	reply := b.dispatch(command.Invocation{
		ID:      interaction.ID,
		Command: data.Name,
		Args:    args,
		Source:  "discord",
		User:    interactionUserID(interaction),
		Channel: interaction.ChannelID,
	})

	content := truncate(reply.Text)
	edit := &discordgo.WebhookEdit{Content: &content}
	if a := reply.Attachment; a != nil {
		edit.Files = []*discordgo.File{attachmentFile(a)}
	}
	if err := b.session.InteractionResponseEdit(interaction, edit); err != nil {
		b.logger.Error("failed to send interaction reply", "command", data.Name, "error", err)
	}
}

func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, mc *discordgo.MessageCreate) {
	msg := mc.Message
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	name, rest, ok := parsePrefixCommand(b.opts.Prefix, msg.Content)
	if !ok {
		return
	}
	desc, ok := b.dispatcher.Registry().Get(name)
	if !ok {
		// The prefix may be shared with other bots.
		return
	}

	reply := b.dispatch(command.Invocation{
		ID:      msg.ID,
		Command: desc.Name,
		Args:    prefixArgs(desc, rest),
		Source:  "discord",
		User:    msg.Author.ID,
		Channel: msg.ChannelID,
	})

	send := &discordgo.MessageSend{
		Content:   truncate(reply.Text),
		Reference: msg.Reference(),
	}
	if a := reply.Attachment; a != nil {
		send.Files = []*discordgo.File{attachmentFile(a)}
	}
	if err := b.session.ChannelMessageSendComplex(msg.ChannelID, send); err != nil {
		b.logger.Error("failed to send message reply", "command", desc.Name, "error", err)
	}
}

// parsePrefixCommand splits "<prefix><name> <rest>".
func parsePrefixCommand(prefix, content string) (name, rest string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	body := strings.TrimPrefix(content, prefix)
	name, rest, _ = strings.Cut(body, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

// prefixArgs maps message text onto a command's params: each param but the
// last takes one word, the last takes the remainder verbatim.
func prefixArgs(desc command.Descriptor, rest string) map[string]string {
	args := make(map[string]string, len(desc.Params))
	for i, p := range desc.Params {
		if rest == "" {
			break
		}
		if i == len(desc.Params)-1 {
			args[p.Name] = rest
			break
		}
		word, remainder, _ := strings.Cut(rest, " ")
		args[p.Name] = word
		rest = strings.TrimSpace(remainder)
	}
	return args
}

// dispatch runs an invocation and turns dispatch errors into user text.
func (b *Bot) dispatch(inv command.Invocation) command.Reply {
	reply, err := b.dispatcher.Dispatch(b.ctx, inv)
	switch {
	case err == nil:
		return reply
	case errors.Is(err, dispatch.ErrUnknownCommand):
		return command.TextReply(fmt.Sprintf("Unknown command `%s`.", inv.Command), "unknown_command")
	case errors.Is(err, dispatch.ErrMissingParams):
		return command.TextReply(usage(b.dispatcher.Registry(), inv.Command), "usage")
	default:
		b.logger.Error("dispatch failed", "command", inv.Command, "error", err)
		return command.TextReply(command.GenericErrorMessage, "error")
	}
}

func usage(reg *command.Registry, name string) string {
	desc, ok := reg.Get(name)
	if !ok {
		return fmt.Sprintf("Unknown command `%s`.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Usage: `%s", desc.Name)
	for _, p := range desc.Params {
		if p.Required {
			fmt.Fprintf(&b, " <%s>", p.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", p.Name)
		}
	}
	b.WriteString("`")
	return b.String()
}

func attachmentFile(a *command.Attachment) *discordgo.File {
	return &discordgo.File{
		Name:        a.Name,
		ContentType: a.ContentType,
		Reader:      bytes.NewReader(a.Data),
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxMessageLen-1]) + "…"
}
