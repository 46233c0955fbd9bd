package dialog

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/triage"
)

const (
	textWelcome  = "¡Hola! Soy el bot de Observabilidad. Puedo ayudarte a reportar incidentes, con runbooks, escalamiento y dashboards. Escribe *ayuda* para ver ejemplos."
	textJoined   = "¡Hola! Estoy listo para ayudarte con incidentes, runbooks, escalamiento y dashboards."
	textFallback = "No te entendí del todo. Escribe *ayuda* para ver ejemplos, o describe el incidente (sistema afectado, síntoma, ambiente) y te guío."
	textGuidance = "No identifiqué el sistema ni el síntoma. Describe el incidente con más detalle (por ejemplo: \"SAP caído en producción\") o usa *Reportar incidente*."
	textNoDraft  = "No hay un incidente en curso (pudo haber expirado). Usa *Reportar incidente* o describe la alerta para empezar de nuevo."
	textClosing  = "¡Con gusto! Si necesitas algo más, aquí estaré."
	textL3Denied = "La escalación a L3 requiere un código de autorización vigente."
	textBadCode  = "Código inválido. Intenta de nuevo o mantén el incidente en L2."
	textKeptL2   = "Entendido, el incidente se mantiene en L2."
	textNotReady = "El incidente aún no está clasificado. Completa el sistema y el síntoma primero."
)

var textHelp = strings.Join([]string{
	"*¿Cómo puedo ayudarte?*",
	"",
	"*Comandos rápidos:*",
	"- `runbook <sistema>`: por ejemplo `runbook sap`, `runbook pagos`",
	"- `dashboard <servicio>`: por ejemplo `dashboard pagos`, `dashboard auth`",
	"- `escalar p1` / `escalar p2`: números on-call",
	"- `menu`: reinicia el reporte en curso",
	"",
	"*Incidentes en lenguaje natural:*",
	"- `tengo problema con encolamiento en smq1 en producción`",
	"- `usuarios no pueden loguearse; auth con errores 500`",
	"- `failover de cluster en VAB123 produccion`",
}, "\n")

func mainMenuCard() *Card {
	return &Card{
		Title: "Bot de Observabilidad L1",
		Blocks: []Block{
			{Kind: BlockText, Text: "Pega el texto de la alerta o inicia un reporte guiado."},
		},
		Actions: []Action{
			{Title: "Reportar incidente", ID: ActionReportIncident},
		},
	}
}

func systemCard(prompt string) *Card {
	c := &Card{Title: "¿Qué sistema está afectado?"}
	if prompt != "" {
		c.Blocks = []Block{{Kind: BlockText, Text: prompt}}
	}
	for _, sys := range []triage.System{triage.SystemSAP, triage.SystemInfra, triage.SystemOther} {
		c.Actions = append(c.Actions, Action{
			Title:   triage.SystemLabel(sys),
			ID:      ActionSelectSystem,
			Payload: map[string]string{FieldSystem: string(sys)},
		})
	}
	c.Actions = append(c.Actions, Action{Title: "Cancelar", ID: ActionMenu})
	return c
}

func environmentCard() *Card {
	c := &Card{Title: "¿En qué ambiente?"}
	for _, env := range []triage.Environment{triage.EnvProduction, triage.EnvQA, triage.EnvDev} {
		c.Actions = append(c.Actions, Action{
			Title:   triage.EnvironmentLabel(env),
			ID:      ActionSelectEnvironment,
			Payload: map[string]string{FieldEnvironment: string(env)},
		})
	}
	c.Actions = append(c.Actions, Action{Title: "Cancelar", ID: ActionMenu})
	return c
}

func symptomCard(sys triage.System, prompt string) *Card {
	c := &Card{Title: "¿Qué síntoma observas?"}
	if prompt != "" {
		c.Blocks = []Block{{Kind: BlockText, Text: prompt}}
	}
	for _, sym := range []triage.Symptom{
		triage.SymptomFailover,
		triage.SymptomDown,
		triage.SymptomQueueing,
		triage.SymptomSlow,
		triage.SymptomErrors,
	} {
		c.Actions = append(c.Actions, Action{
			Title:   triage.SymptomLabel(sys, sym),
			ID:      ActionSelectSymptom,
			Payload: map[string]string{FieldSymptom: string(sym)},
		})
	}
	c.Actions = append(c.Actions, Action{Title: "Cancelar", ID: ActionMenu})
	return c
}

func factsBlock(d *triage.Draft) Block {
	items := []string{
		"Severidad: " + d.Severity().Label(),
		"Sistema: " + triage.SystemLabel(d.System),
		"Síntoma: " + triage.SymptomLabel(d.System, d.Symptom),
		"Ambiente: " + triage.EnvironmentLabel(d.Environment),
	}
	if d.Node != "" {
		items = append(items, "Nodo: "+d.Node)
	}
	if d.EventTimestamp != "" {
		items = append(items, "Hora del evento: "+d.EventTimestamp)
	}
	return Block{Kind: BlockFacts, Items: items}
}

func contactActions(id string, contacts []directory.Contact) []Action {
	out := make([]Action, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, Action{
			Title:   "Enviar a " + c.Name,
			ID:      id,
			Payload: map[string]string{FieldRecipient: c.Key},
		})
	}
	return out
}

func summaryCard(d *triage.Draft, dir *directory.Directory) *Card {
	sev := d.Severity()
	rb := triage.SelectRunbook(d.System, d.Symptom, sev)

	c := &Card{
		Title: fmt.Sprintf("Incidente %s: %s", sev.Label(), triage.SymptomLabel(d.System, d.Symptom)),
		Blocks: []Block{
			factsBlock(d),
			{Kind: BlockList, Label: "Checklist rápido", Items: rb.QuickChecklist},
			{Kind: BlockText, Label: "Siguiente acción", Text: rb.NextAction},
		},
	}
	if sev == triage.SeverityP1 {
		if line := dir.OnCallLine(sev); line != "" {
			c.Blocks = append(c.Blocks, Block{Kind: BlockText, Label: "Guardia", Text: line})
		}
	}

	c.Actions = append(c.Actions, Action{Title: "Ver runbook", ID: ActionShowRunbook})
	c.Actions = append(c.Actions, contactActions(ActionContactL2, dir.ForTier(directory.TierL2, d.System))...)
	if d.L3Enabled {
		c.Actions = append(c.Actions, contactActions(ActionContactL3, dir.ForTier(directory.TierL3, d.System))...)
		c.Actions = append(c.Actions, Action{Title: "Mantener en L2", ID: ActionKeepL2})
	} else {
		c.Actions = append(c.Actions, Action{Title: "Escalar a L3", ID: ActionEscalateL3})
	}
	c.Actions = append(c.Actions, Action{Title: "Nuevo reporte", ID: ActionMenu})
	return c
}

func runbookCard(d *triage.Draft, dir *directory.Directory) *Card {
	rb := triage.SelectRunbook(d.System, d.Symptom, d.Severity())
	c := &Card{Title: "Runbook: " + rb.Title}
	c.Blocks = append(c.Blocks, Block{Kind: BlockList, Label: "Checklist rápido", Items: rb.QuickChecklist})
	for _, s := range rb.Steps {
		c.Blocks = append(c.Blocks, Block{Kind: BlockList, Label: s.Title, Items: s.Bullets})
	}
	c.Blocks = append(c.Blocks, Block{Kind: BlockText, Label: "Siguiente acción", Text: rb.NextAction})
	if l, ok := dir.RunbookFor(d.System); ok {
		c.Blocks = append(c.Blocks, Block{Kind: BlockLink, Label: "Documento", Text: l.URL})
	}
	if l, ok := dir.Dashboard(string(d.System)); ok {
		c.Blocks = append(c.Blocks, Block{Kind: BlockLink, Label: "Dashboard", Text: l.URL})
	}
	c.Actions = append(contactActions(ActionContactL2, dir.ForTier(directory.TierL2, d.System)),
		Action{Title: "Escalar a L3", ID: ActionEscalateL3},
		Action{Title: "Nuevo reporte", ID: ActionMenu},
	)
	return c
}

func l3AuthCard() *Card {
	return &Card{
		Title: "Autorización L3 requerida",
		Blocks: []Block{
			{Kind: BlockText, Text: "Ingresa el código de autorización entregado por el líder de turno."},
		},
		Actions: []Action{
			{Title: "Enviar código", ID: ActionSubmitL3Code, Input: FieldCode},
			{Title: "Mantener en L2", ID: ActionKeepL2},
		},
	}
}

func l3Card(d *triage.Draft, dir *directory.Directory) *Card {
	c := &Card{
		Title:  "Escalación L3 autorizada",
		Blocks: []Block{factsBlock(d)},
	}
	c.Actions = append(contactActions(ActionContactL3, dir.ForTier(directory.TierL3, d.System)),
		Action{Title: "Mantener en L2", ID: ActionKeepL2},
	)
	return c
}

func sentCard(to directory.Contact, summary string) *Card {
	c := &Card{
		Title: "Resumen enviado a " + to.Name,
		Blocks: []Block{
			{Kind: BlockPreformatted, Text: summary},
		},
	}
	var reach []string
	if to.Phone != "" {
		reach = append(reach, "Teléfono: "+to.Phone)
	}
	if to.Email != "" {
		reach = append(reach, "Correo: "+to.Email)
	}
	if len(reach) > 0 {
		c.Blocks = append(c.Blocks, Block{Kind: BlockFacts, Label: "Contacto", Items: reach})
	}
	return c
}
