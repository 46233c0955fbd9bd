package dialog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/linnemanlabs/firstline/internal/triage"
)

// Texts shorter than this that carry no incident signal get the fallback.
const minFreeTextRunes = 6

var (
	greetingRe = regexp.MustCompile(`\b(hola|holi|buenas|buenos dias|buenas tardes|buenas noches|hey|hello|hi)\b`)
	closingRe  = regexp.MustCompile(`\b(gracias|muchas gracias|thanks|bye|adios|chao|hasta luego)\b`)
	escalateRe = regexp.MustCompile(`\bescalar\s+(p1|p2)\b`)
)

var helpWords = map[string]bool{
	"ayuda":    true,
	"help":     true,
	"?":        true,
	"comandos": true,
}

// isCommandWord reports whether norm is a keyword that must never be read
// as an authorization code.
func isCommandWord(norm string) bool {
	return helpWords[norm] || norm == "menu"
}

// command handles the quick commands. Incident detection only runs when it
// reports false.
func (h *handler) command(ctx context.Context, norm string) ([]Response, bool) {
	switch {
	case helpWords[norm]:
		return []Response{textResponse(textHelp)}, true
	case norm == "menu":
		return h.menu(ctx), true
	case hasCommandPrefix(norm, "runbook"):
		return h.runbookLinks(strings.TrimSpace(strings.TrimPrefix(norm, "runbook"))), true
	case hasCommandPrefix(norm, "dashboard"):
		return h.dashboard(strings.TrimSpace(strings.TrimPrefix(norm, "dashboard"))), true
	}
	if m := escalateRe.FindStringSubmatch(norm); m != nil {
		sev := triage.SeverityP2
		if m[1] == "p1" {
			sev = triage.SeverityP1
		}
		return []Response{textResponse(fmt.Sprintf("Escalamiento %s:\n%s", sev.Label(), h.c.dir.OnCallLine(sev)))}, true
	}
	return nil, false
}

// smallTalk answers greetings and farewells that carry no incident signal.
func (h *handler) smallTalk(norm string) ([]Response, bool) {
	switch {
	case greetingRe.MatchString(norm):
		return []Response{textResponse(textWelcome), cardResponse(mainMenuCard())}, true
	case closingRe.MatchString(norm):
		return []Response{textResponse(textClosing)}, true
	}
	return nil, false
}

func hasCommandPrefix(norm, cmd string) bool {
	if !strings.HasPrefix(norm, cmd) {
		return false
	}
	rest := norm[len(cmd):]
	return rest == "" || rest[0] == ' '
}

func (h *handler) runbookLinks(query string) []Response {
	links := h.c.dir.RunbookLinks(query)
	if len(links) == 0 {
		return []Response{textResponse(fmt.Sprintf("No encontré runbook para \"%s\".", orDefault(query, "ese sistema")))}
	}
	out := make([]Response, 0, len(links))
	for _, l := range links {
		out = append(out, textResponse(fmt.Sprintf("Runbook de *%s*: %s", l.Name, l.URL)))
	}
	return out
}

func (h *handler) dashboard(query string) []Response {
	l, ok := h.c.dir.Dashboard(query)
	if !ok {
		return []Response{textResponse(fmt.Sprintf("No encontré dashboard para \"%s\".", orDefault(query, "ese servicio")))}
	}
	return []Response{textResponse(fmt.Sprintf("Dashboard de *%s*: %s", l.Name, l.URL))}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
