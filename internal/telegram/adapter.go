// Package telegram connects the dialog controller to a Telegram bot using
// long polling. Cards become Markdown messages with inline keyboards and
// button presses come back as dialog actions.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/firstline/internal/dialog"
)

const pollTimeoutSeconds = 30

// Dialog handles one inbound conversation event.
type Dialog interface {
	Handle(ctx context.Context, ev dialog.Event) []dialog.Response
}

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Adapter bridges Telegram to the dialog controller.
type Adapter struct {
	bot    botAPI
	dialog Dialog
	logger log.Logger
	wg     sync.WaitGroup
}

// New creates a Telegram adapter authenticated with token.
func New(token string, d Dialog, logger log.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newAdapter(bot, d, logger), nil
}

func newAdapter(bot botAPI, d Dialog, logger log.Logger) *Adapter {
	if d == nil {
		panic(xerrors.New("dialog is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Adapter{bot: bot, dialog: d, logger: logger}
}

// Run long-polls for updates until ctx is cancelled, handling each update
// on its own goroutine. It returns once in-flight updates are done.
func (a *Adapter) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds

	updates := a.bot.GetUpdatesChan(u)
	defer a.wg.Wait()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.handleUpdate(ctx, update)
			}()
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil {
		// Acknowledge so the client stops its spinner.
		if _, err := a.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			a.logger.Warn(ctx, "telegram callback ack failed", "err", err)
		}
	}

	chatID, events, err := eventsFromUpdate(update)
	if err != nil {
		a.logger.Warn(ctx, "ignoring telegram update", "update_id", update.UpdateID, "err", err)
		return
	}
	for _, ev := range events {
		for _, resp := range a.dialog.Handle(ctx, ev) {
			a.send(ctx, chatID, resp)
		}
	}
}

// eventsFromUpdate maps an update onto dialog events. Updates the bot does
// not act on yield no events.
func eventsFromUpdate(update tgbotapi.Update) (int64, []dialog.Event, error) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return 0, nil, fmt.Errorf("callback %s without origin message", cq.ID)
		}
		action, fields, err := decodeCallback(cq.Data)
		if err != nil {
			return 0, nil, err
		}
		ev := dialog.ActionEvent{Caller: caller(cq.Message.Chat.ID, cq.From), Action: action, Fields: fields}
		return cq.Message.Chat.ID, []dialog.Event{ev}, nil
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return 0, nil, nil
	}
	chatID := msg.Chat.ID

	if len(msg.NewChatMembers) > 0 {
		events := make([]dialog.Event, 0, len(msg.NewChatMembers))
		for i := range msg.NewChatMembers {
			m := &msg.NewChatMembers[i]
			if m.IsBot {
				continue
			}
			events = append(events, dialog.MemberJoinedEvent{Caller: caller(chatID, m)})
		}
		return chatID, events, nil
	}

	if msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		return chatID, nil, nil
	}
	c := caller(chatID, msg.From)

	if msg.IsCommand() {
		if msg.Command() == "start" {
			return chatID, []dialog.Event{dialog.MemberJoinedEvent{Caller: c}}, nil
		}
		// "/runbook sap" reads the same as "runbook sap".
		text := strings.TrimSpace(msg.Command() + " " + msg.CommandArguments())
		return chatID, []dialog.Event{dialog.TextEvent{Caller: c, Text: text}}, nil
	}
	return chatID, []dialog.Event{dialog.TextEvent{Caller: c, Text: msg.Text}}, nil
}

func caller(chatID int64, u *tgbotapi.User) dialog.Caller {
	name := u.FirstName
	if name == "" {
		name = u.UserName
	}
	return dialog.Caller{
		ConversationID: "telegram:" + strconv.FormatInt(chatID, 10),
		ParticipantID:  strconv.FormatInt(u.ID, 10),
		Name:           name,
	}
}

func (a *Adapter) send(ctx context.Context, chatID int64, resp dialog.Response) {
	out, errs := renderResponse(resp)
	for _, err := range errs {
		a.logger.Warn(ctx, "dropping telegram button", "err", err)
	}

	parts := splitMessage(out.text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		// The keyboard rides on the last chunk.
		if i == len(parts)-1 && out.keyboard != nil {
			msg.ReplyMarkup = *out.keyboard
		}
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				a.logger.Error(ctx, err, "telegram send failed", "chat_id", chatID)
			}
		}
	}
}
