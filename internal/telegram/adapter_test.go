package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/firstline/internal/dialog"
	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/triage"
	"github.com/linnemanlabs/firstline/internal/triage/memstore"
)

type fakeBot struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	acks    []string
	failMD  bool
	stopped bool
}

func newFakeBot() *fakeBot { return &fakeBot{updates: make(chan tgbotapi.Update)} }

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.failMD && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acks = append(f.acks, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBot, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	c := dialog.New(store, triage.NewGate("L3-TEST"), directory.Builtin(), log.Nop())
	t.Cleanup(c.Wait)
	bot := newFakeBot()
	return newAdapter(bot, c, log.Nop()), bot, store
}

var alice = &tgbotapi.User{ID: 42, FirstName: "Alice"}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		From: alice,
		Chat: &tgbotapi.Chat{ID: 100},
		Text: text,
	}}
}

func commandUpdate(cmd, args string) tgbotapi.Update {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	u := textUpdate(text)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return u
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 2, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    alice,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		Data:    data,
	}}
}

func TestCallbackRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		action  string
		payload map[string]string
	}{
		{"no payload", dialog.ActionReportIncident, nil},
		{"system", dialog.ActionSelectSystem, map[string]string{dialog.FieldSystem: "sap"}},
		{"recipient", dialog.ActionContactL2, map[string]string{dialog.FieldRecipient: "l2-infra"}},
		{"escaped value", dialog.ActionSelectSymptom, map[string]string{dialog.FieldSymptom: "a&b=c ñ"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := encodeCallback(tt.action, tt.payload)
			if err != nil {
				t.Fatalf("encodeCallback: %v", err)
			}
			if len(data) > maxCallbackData {
				t.Errorf("encoded length = %d, want <= %d", len(data), maxCallbackData)
			}

			action, fields, err := decodeCallback(data)
			if err != nil {
				t.Fatalf("decodeCallback(%q): %v", data, err)
			}
			if action != tt.action {
				t.Errorf("action = %q, want %q", action, tt.action)
			}
			want := tt.payload
			if want == nil {
				want = map[string]string{}
			}
			if diff := cmp.Diff(want, fields); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeCallback_TooLong(t *testing.T) {
	t.Parallel()

	_, err := encodeCallback(dialog.ActionContactL2, map[string]string{dialog.FieldRecipient: strings.Repeat("x", 80)})
	if !errors.Is(err, errCallbackTooLong) {
		t.Fatalf("err = %v, want errCallbackTooLong", err)
	}
}

func TestDecodeCallback_Invalid(t *testing.T) {
	t.Parallel()

	for _, data := range []string{"", "system=sap", "a=%zz"} {
		if _, _, err := decodeCallback(data); err == nil {
			t.Errorf("decodeCallback(%q) = nil error, want error", data)
		}
	}
}

func TestBuiltinCardsFitCallbackLimit(t *testing.T) {
	t.Parallel()

	a, bot, _ := newTestAdapter(t)
	ctx := context.Background()

	a.handleUpdate(ctx, textUpdate("failover de cluster en VAB123 produccion"))
	a.handleUpdate(ctx, callbackUpdate("a="+dialog.ActionReportIncident))
	a.handleUpdate(ctx, callbackUpdate("a=select_system&system=sap"))

	for _, m := range bot.messages() {
		kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			continue
		}
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				if btn.CallbackData == nil || len(*btn.CallbackData) > maxCallbackData {
					t.Errorf("button %q has invalid callback data", btn.Text)
				}
			}
		}
	}
}

func TestRenderResponse(t *testing.T) {
	t.Parallel()

	card := &dialog.Card{
		Title: "Incidente P1: Failover",
		Blocks: []dialog.Block{
			{Kind: dialog.BlockFacts, Items: []string{"Severidad: P1", "Nodo: VAB123"}},
			{Kind: dialog.BlockText, Label: "Siguiente acción", Text: "Llamar a guardia"},
			{Kind: dialog.BlockPreformatted, Text: "resumen"},
		},
		Actions: []dialog.Action{
			{Title: "Ver runbook", ID: dialog.ActionShowRunbook},
			{Title: "Enviar código", ID: dialog.ActionSubmitL3Code, Input: dialog.FieldCode},
		},
	}

	out, errs := renderResponse(dialog.Response{Card: card})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	for _, want := range []string{"*Incidente P1: Failover*", "• Nodo: VAB123", "*Siguiente acción*", "```\nresumen\n```", "Enviar código"} {
		if !strings.Contains(out.text, want) {
			t.Errorf("text missing %q:\n%s", want, out.text)
		}
	}
	if out.keyboard == nil || len(out.keyboard.InlineKeyboard) != 1 {
		t.Fatalf("keyboard = %+v, want one button row (input actions are not buttons)", out.keyboard)
	}

	plain, _ := renderResponse(dialog.Response{Text: "hola"})
	if plain.text != "hola" || plain.keyboard != nil {
		t.Errorf("text response rendered as %+v", plain)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	if got := splitMessage("corto"); len(got) != 1 {
		t.Fatalf("short message split into %d parts", len(got))
	}

	long := strings.Repeat("línea de resumen ñ\n", 600)
	parts := splitMessage(long)
	if len(parts) < 2 {
		t.Fatalf("parts = %d, want several", len(parts))
	}
	for i, p := range parts {
		if len(p) > maxTelegramMessage {
			t.Errorf("part %d has %d bytes", i, len(p))
		}
		if !utf8.ValidString(p) {
			t.Errorf("part %d is not valid UTF-8", i)
		}
	}

	noBreaks := strings.Repeat("ñ", 5000)
	for i, p := range splitMessage(noBreaks) {
		if !utf8.ValidString(p) || len(p) > maxTelegramMessage {
			t.Errorf("part %d invalid (len %d)", i, len(p))
		}
	}
}

func TestEventsFromUpdate(t *testing.T) {
	t.Parallel()

	joined := tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:           &tgbotapi.Chat{ID: 7},
		NewChatMembers: []tgbotapi.User{{ID: 1, FirstName: "Bob"}, {ID: 2, IsBot: true}},
	}}

	tests := []struct {
		name   string
		update tgbotapi.Update
		want   []dialog.Event
	}{
		{
			name:   "text",
			update: textUpdate("SAP caído"),
			want: []dialog.Event{dialog.TextEvent{
				Caller: dialog.Caller{ConversationID: "telegram:100", ParticipantID: "42", Name: "Alice"},
				Text:   "SAP caído",
			}},
		},
		{
			name:   "start command welcomes",
			update: commandUpdate("start", ""),
			want: []dialog.Event{dialog.MemberJoinedEvent{
				Caller: dialog.Caller{ConversationID: "telegram:100", ParticipantID: "42", Name: "Alice"},
			}},
		},
		{
			name:   "command becomes text",
			update: commandUpdate("runbook", "sap"),
			want: []dialog.Event{dialog.TextEvent{
				Caller: dialog.Caller{ConversationID: "telegram:100", ParticipantID: "42", Name: "Alice"},
				Text:   "runbook sap",
			}},
		},
		{
			name:   "callback",
			update: callbackUpdate("a=select_system&system=infra"),
			want: []dialog.Event{dialog.ActionEvent{
				Caller: dialog.Caller{ConversationID: "telegram:100", ParticipantID: "42", Name: "Alice"},
				Action: dialog.ActionSelectSystem,
				Fields: map[string]string{dialog.FieldSystem: "infra"},
			}},
		},
		{
			name:   "new members skip bots",
			update: joined,
			want: []dialog.Event{dialog.MemberJoinedEvent{
				Caller: dialog.Caller{ConversationID: "telegram:7", ParticipantID: "1", Name: "Bob"},
			}},
		},
		{name: "empty text", update: textUpdate("   ")},
		{name: "no message", update: tgbotapi.Update{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, got, err := eventsFromUpdate(tt.update)
			if err != nil {
				t.Fatalf("eventsFromUpdate: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleUpdate_WizardOverCallbacks(t *testing.T) {
	t.Parallel()

	a, bot, store := newTestAdapter(t)
	ctx := context.Background()

	for _, data := range []string{
		"a=report_incident",
		"a=select_system&system=infra",
		"a=select_environment&environment=production",
		"a=select_symptom&symptom=down",
	} {
		a.handleUpdate(ctx, callbackUpdate(data))
	}

	d, ok, err := store.Get(ctx, triage.NewSessionKey("telegram:100", "42"))
	if err != nil || !ok {
		t.Fatalf("draft missing: ok=%v err=%v", ok, err)
	}
	if d.Stage != triage.StageSummaryReady {
		t.Errorf("stage = %s, want summary_ready", d.Stage)
	}

	bot.mu.Lock()
	acks := len(bot.acks)
	bot.mu.Unlock()
	if acks != 4 {
		t.Errorf("callback acks = %d, want 4", acks)
	}

	msgs := bot.messages()
	if len(msgs) == 0 || !strings.Contains(msgs[len(msgs)-1].Text, "Incidente P1") {
		t.Error("last message should be the P1 summary card")
	}
}

func TestSend_RetriesWithoutMarkdown(t *testing.T) {
	t.Parallel()

	a, bot, _ := newTestAdapter(t)
	bot.failMD = true

	a.send(context.Background(), 100, dialog.Response{Text: "texto con _markdown roto"})

	msgs := bot.messages()
	if len(msgs) != 1 || msgs[0].ParseMode != "" {
		t.Fatalf("sent = %+v, want one plain retry", msgs)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a, bot, _ := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	bot.updates <- textUpdate("ayuda")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if !bot.stopped {
		t.Error("StopReceivingUpdates was not called")
	}
	if len(bot.sent) == 0 {
		t.Error("update received before cancel was not answered")
	}
}

func TestNewAdapter_NilDialogPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("newAdapter did not panic on nil dialog")
		}
	}()
	newAdapter(newFakeBot(), nil, log.Nop())
}
