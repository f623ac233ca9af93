package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pivolan/textile_dashboard/analysis"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/pages"
)

// maxMessageLen stays under the Telegram limit of 4096 characters.
const maxMessageLen = 4000

const helpText = `Fashion Textile dashboard bot.

Commands:
/pages - list dashboard pages
/search <page> [query] - rows of a page matching query
/summary <page> [query] - page metrics
/chart <page> [column] - top values chart
/analysis_start - upload the datasets and start an analysis session
/ask <question> - ask the analyst; plain messages work too once a session is active
/analysis_stop - end the analysis session`

// sender is the part of tgbotapi.BotAPI the bot uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api          sender
	loader       pages.TableLoader
	analyst      *analysis.Analyst
	states       *analysis.States
	editInterval time.Duration
}

func NewBot(api sender, loader pages.TableLoader, analyst *analysis.Analyst, states *analysis.States) *Bot {
	if states == nil {
		states = analysis.NewStates()
	}
	return &Bot{
		api:          api,
		loader:       loader,
		analyst:      analyst,
		states:       states,
		editInterval: time.Second,
	}
}

// Dial connects to the Bot API with token.
func Dial(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return api, nil
}

// Run polls api for updates until ctx is done. Each update is handled in
// its own goroutine.
func Run(ctx context.Context, api *tgbotapi.BotAPI, b *Bot) error {
	core.Infof(ctx, "telegram: authorized on account %s", api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("telegram updates: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers one message.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	ctx = core.WithDefaultLogger(ctx, fmt.Sprintf("tg-%d-%d", chatID, update.UpdateID))

	if !message.IsCommand() {
		if b.state(chatID).Active() {
			b.handleAsk(ctx, chatID, message.Text)
			return
		}
		b.reply(ctx, chatID, helpText)
		return
	}

	args := strings.TrimSpace(message.CommandArguments())
	core.Debugf(ctx, "telegram: /%s %q", message.Command(), args)
	switch message.Command() {
	case "start", "help":
		b.reply(ctx, chatID, helpText)
	case "pages":
		b.handlePages(ctx, chatID)
	case "search":
		b.handleSearch(ctx, chatID, args)
	case "summary":
		b.handleSummary(ctx, chatID, args)
	case "chart":
		b.handleChart(ctx, chatID, args)
	case "analysis_start":
		b.handleStart(ctx, chatID)
	case "ask":
		b.handleAsk(ctx, chatID, args)
	case "analysis_stop":
		b.handleStop(ctx, chatID)
	default:
		b.reply(ctx, chatID, "Unknown command. Use /help to see the list.")
	}
}

func (b *Bot) state(chatID int64) *analysis.SessionState {
	return b.states.Get(strconv.FormatInt(chatID, 10))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) tgbotapi.Message {
	msg, err := b.api.Send(tgbotapi.NewMessage(chatID, truncate(text)))
	if err != nil {
		core.Errorf(ctx, "telegram: send to %d: %v", chatID, err)
	}
	return msg
}

func truncate(text string) string {
	if len(text) <= maxMessageLen {
		return text
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n..."
}

// splitPage parses "<page> [rest]". problem is the reply for bad input.
func splitPage(args string) (p pages.Page, rest string, problem string) {
	name, rest, _ := strings.Cut(args, " ")
	if name == "" {
		return p, "", "Specify a page: " + strings.Join(dataPageSlugs(), ", ")
	}
	p, ok := pages.Lookup(name)
	if !ok || p.IsHome() {
		return pages.Page{}, "", fmt.Sprintf("Unknown page %q. Pages: %s", name, strings.Join(dataPageSlugs(), ", "))
	}
	return p, strings.TrimSpace(rest), ""
}

func dataPageSlugs() []string {
	var out []string
	for _, p := range pages.All() {
		if !p.IsHome() {
			out = append(out, p.Slug)
		}
	}
	return out
}
