package triage

import (
	"fmt"
	"strings"
)

// MaxExcerptRunes bounds the alert excerpt included in summaries.
const MaxExcerptRunes = 900

// Recipient is who a summary is addressed to.
type Recipient struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Tier string `json:"tier"`
	Role string `json:"role,omitempty"`
}

// RenderSummary renders the executive summary of d for r. Output depends only
// on its inputs.
func RenderSummary(d *Draft, r Recipient) string {
	sev := d.Severity()
	rb := SelectRunbook(d.System, d.Symptom, sev)

	var b strings.Builder
	b.WriteString("RESUMEN EJECUTIVO DE INCIDENTE\n")
	fmt.Fprintf(&b, "ID: %s\n", d.ID)
	fmt.Fprintf(&b, "Severidad: %s\n", severityLine(sev))
	fmt.Fprintf(&b, "Sistema: %s\n", SystemLabel(d.System))
	fmt.Fprintf(&b, "Síntoma: %s\n", SymptomLabel(d.System, d.Symptom))
	fmt.Fprintf(&b, "Ambiente: %s\n", EnvironmentLabel(d.Environment))
	if d.Node != "" {
		fmt.Fprintf(&b, "Nodo: %s\n", d.Node)
	}
	if d.EventTimestamp != "" {
		fmt.Fprintf(&b, "Hora del evento: %s\n", d.EventTimestamp)
	}
	fmt.Fprintf(&b, "Detectado: %s\n", d.DetectedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Destinatario: %s\n", recipientLine(r))

	b.WriteString("\nChecklist rápido:\n")
	for _, item := range rb.QuickChecklist {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	fmt.Fprintf(&b, "\nSiguiente acción: %s\n", rb.NextAction)

	if excerpt := Excerpt(d.RawAlertText, MaxExcerptRunes); excerpt != "" {
		b.WriteString("\nExtracto de la alerta:\n")
		for _, line := range strings.Split(excerpt, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
	}
	return b.String()
}

// Excerpt trims s and cuts it to at most limit runes, marking the cut with an ellipsis.
func Excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func severityLine(sev Severity) string {
	if sev == SeverityP1 {
		return "P1 (crítico)"
	}
	return "P2 (estándar)"
}

func recipientLine(r Recipient) string {
	line := r.Name
	if line == "" {
		line = r.Key
	}
	if r.Tier != "" {
		line += " (" + strings.ToUpper(r.Tier)
		if r.Role != "" {
			line += ", " + r.Role
		}
		line += ")"
	}
	return line
}
