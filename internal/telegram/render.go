package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/linnemanlabs/firstline/internal/dialog"
)

const (
	maxTelegramMessage = 4096
	maxCallbackData    = 64
	actionParam        = "a"
)

var errCallbackTooLong = errors.New("callback data exceeds 64 bytes")

// encodeCallback packs an action and its payload as a URL query. Telegram
// rejects callback data longer than 64 bytes.
func encodeCallback(action string, payload map[string]string) (string, error) {
	v := url.Values{}
	v.Set(actionParam, action)
	for k, val := range payload {
		if k == actionParam {
			continue
		}
		v.Set(k, val)
	}
	data := v.Encode()
	if len(data) > maxCallbackData {
		return "", fmt.Errorf("%w: %q", errCallbackTooLong, data)
	}
	return data, nil
}

// decodeCallback reverses encodeCallback.
func decodeCallback(data string) (string, map[string]string, error) {
	v, err := url.ParseQuery(data)
	if err != nil {
		return "", nil, fmt.Errorf("parse callback data: %w", err)
	}
	action := v.Get(actionParam)
	if action == "" {
		return "", nil, errors.New("callback data has no action")
	}
	fields := make(map[string]string, len(v))
	for k := range v {
		if k != actionParam {
			fields[k] = v.Get(k)
		}
	}
	return action, fields, nil
}

// rendered is one outgoing Telegram message.
type rendered struct {
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

// renderResponse turns a dialog response into Markdown text and an inline
// keyboard. Actions that need typed input become a hint line, since the
// controller reads the next plain message as that input.
func renderResponse(r dialog.Response) (rendered, []error) {
	if r.Card == nil {
		return rendered{text: r.Text}, nil
	}
	c := r.Card

	var b strings.Builder
	if c.Title != "" {
		fmt.Fprintf(&b, "*%s*\n", c.Title)
	}
	for _, blk := range c.Blocks {
		b.WriteString("\n")
		writeBlock(&b, blk)
	}

	var (
		rows [][]tgbotapi.InlineKeyboardButton
		errs []error
	)
	for _, a := range c.Actions {
		if a.Input != "" {
			fmt.Fprintf(&b, "\n_%s: responde con el valor de %s._\n", a.Title, a.Input)
			continue
		}
		data, err := encodeCallback(a.ID, a.Payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(a.Title, data)))
	}

	out := rendered{text: strings.TrimRight(b.String(), "\n")}
	if len(rows) > 0 {
		kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
		out.keyboard = &kb
	}
	return out, errs
}

func writeBlock(b *strings.Builder, blk dialog.Block) {
	if blk.Label != "" {
		fmt.Fprintf(b, "*%s*\n", blk.Label)
	}
	switch blk.Kind {
	case dialog.BlockFacts, dialog.BlockList:
		for _, it := range blk.Items {
			fmt.Fprintf(b, "• %s\n", it)
		}
	case dialog.BlockPreformatted:
		fmt.Fprintf(b, "```\n%s\n```\n", blk.Text)
	default:
		b.WriteString(blk.Text)
		b.WriteString("\n")
	}
}

// splitMessage cuts text into chunks Telegram accepts, preferring line
// boundaries and never splitting a rune.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		cut := strings.LastIndex(text[:maxTelegramMessage], "\n")
		if cut <= 0 {
			cut = maxTelegramMessage
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
