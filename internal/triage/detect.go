package triage

import (
	"regexp"
	"strings"
)

// Detection is what the detector could read out of one alert text. Signals
// that were not found are left as SystemUnknown / SymptomUnknown / "".
// Environment falls back to production when no alias matched;
// EnvironmentMatched tells the two apart.
type Detection struct {
	System             System      `json:"system"`
	Symptom            Symptom     `json:"symptom"`
	Environment        Environment `json:"environment"`
	EnvironmentMatched bool        `json:"environment_matched"`
	Critical           bool        `json:"critical"`
	Node               string      `json:"node,omitempty"`
	Timestamp          string      `json:"timestamp,omitempty"`
	Matched            []string    `json:"matched,omitempty"`
}

// Classified reports whether both system and symptom were detected.
func (d Detection) Classified() bool {
	return d.System != SystemUnknown && d.Symptom != SymptomUnknown
}

// rule is one ordered (predicate, result) entry. Lists of rules are evaluated
// first-match-wins.
type rule[T any] struct {
	name   string
	re     *regexp.Regexp
	result T
}

func firstMatch[T any](rules []rule[T], text string) (rule[T], bool) {
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r, true
		}
	}
	var zero rule[T]
	return zero, false
}

func firstFind(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

var (
	failoverRe     = regexp.MustCompile(`\b(failover|fail-over|fail over|switchover|switch-over|takeover|conmutacion|conmuto|cambio de nodo|basculamiento)\b`)
	infraRe        = regexp.MustCompile(`\b(cluster|clusters|nodo|nodos|node|nodes|servidor|servidores|server|servers|host|hosts|vm|vms|maquina virtual|hypervisor|vmware|esxi|storage|almacenamiento|disco|discos|disk|red|network|switch|firewall|balanceador|load balancer|dns|linux|windows|cpu|memoria|memory|auth|autenticacion|login|base de datos|database|bd|db)\b`)
	clusterAlertRe = regexp.MustCompile(`\b(alerta (de|del) cluster|cluster alert|resource group|grupo de recursos|pacemaker|quorum|heartbeat)\b`)
	queueingRe     = regexp.MustCompile(`\b(encolamiento|encolados?|encoladas?|encolando|colas?|queues?|queued|queueing|queuing|qrfc|trfc|smq[123]|sm58)\b`)
	sapTermRe      = regexp.MustCompile(`\b(sap|hana|s/?4 ?hana|ecc|abap|idocs?|basis|fiori)\b`)
	sapTcodeRe     = regexp.MustCompile(`\b((sm|st|su|se|sp|we|al|rz|scc)\d{2}n?|db0\d|db1\d|sost|stms|sxmb_moni)\b`)
	downRe         = regexp.MustCompile(`\b(caid[oa]s?|cayo|down|no responde|no responden|sin respuesta|fuera de servicio|fuera de linea|inaccesible|no disponible|indisponible|unavailable|unreachable|not responding|apagad[oa]s?|detenid[oa]s?|stopped|offline|sin servicio|outage)\b`)
	slowRe         = regexp.MustCompile(`\b(lent[oa]s?|lentitud|slow|degradad[oa]s?|degradacion|degraded|latencia|latency|timeouts?|time out|demoras?|tarda|tardando)\b`)
	errorsRe       = regexp.MustCompile(`\b(errores|errors?|fall[oa]s?|fallando|fallan|fallido|exceptions?|excepcion|excepciones|dumps?|failed|failures?|failing|rechazad[oa]s?|[45]\d\d)\b`)
)

var defaultSystemRules = []rule[System]{
	{name: "system.queueing", re: queueingRe, result: SystemSAP},
	{name: "system.sap_tcode", re: sapTcodeRe, result: SystemSAP},
	{name: "system.sap_term", re: sapTermRe, result: SystemSAP},
	{name: "system.infra", re: infraRe, result: SystemInfra},
}

var defaultSymptomRules = []rule[Symptom]{
	{name: "symptom.queueing", re: queueingRe, result: SymptomQueueing},
	{name: "symptom.down", re: downRe, result: SymptomDown},
	{name: "symptom.slow", re: slowRe, result: SymptomSlow},
	{name: "symptom.errors", re: errorsRe, result: SymptomErrors},
}

// Production aliases come first so an ambiguous text leans to the higher
// severity assumption.
var defaultEnvironmentRules = []rule[Environment]{
	{name: "env.production", re: regexp.MustCompile(`\b(production|produccion|productivo|prod|prd)\b`), result: EnvProduction},
	{name: "env.qa", re: regexp.MustCompile(`\b(qa|qas|test|testing|pruebas|calidad)\b`), result: EnvQA},
	{name: "env.dev", re: regexp.MustCompile(`\b(desarrollo|development|dev)\b`), result: EnvDev},
}

// Node patterns run against the raw text.
var defaultNodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bva[a-z]\s*-?\s*\d{2,}\b`),
	regexp.MustCompile(`(?i)\b(srv|hana|app|ora)\s*-?\s*\d{2,}\b`),
	regexp.MustCompile(`(?i)\b(nodo|node)\s*-?\s*\d{1,3}\b`),
}

// Timestamp patterns run against the raw text so AM/PM markers survive.
var defaultTimestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4},?\s+\d{1,2}:\d{2}(:\d{2})?(\s*[AaPp]\.?\s?[Mm]\.?)?`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?`),
}

// Detector extracts incident signals from alert text.
type Detector struct {
	systems      []rule[System]
	symptoms     []rule[Symptom]
	environments []rule[Environment]
	nodes        []*regexp.Regexp
	timestamps   []*regexp.Regexp
}

// NewDetector returns a detector loaded with the built-in rule tables.
func NewDetector() *Detector {
	return &Detector{
		systems:      defaultSystemRules,
		symptoms:     defaultSymptomRules,
		environments: defaultEnvironmentRules,
		nodes:        defaultNodePatterns,
		timestamps:   defaultTimestampPatterns,
	}
}

// Detect classifies text. It never fails: absent signals stay unset.
func (dt *Detector) Detect(text string) Detection {
	norm := Normalize(text)
	det := Detection{
		System:      SystemUnknown,
		Symptom:     SymptomUnknown,
		Environment: EnvProduction,
		Node:        collapseSpace(firstFind(dt.nodes, text)),
		Timestamp:   strings.TrimSpace(firstFind(dt.timestamps, text)),
	}

	if r, ok := firstMatch(dt.environments, norm); ok {
		det.Environment = r.result
		det.EnvironmentMatched = true
		det.Matched = append(det.Matched, r.name)
	}

	if dt.isFailover(norm, det.Node != "") {
		det.System = SystemInfra
		det.Symptom = SymptomFailover
		det.Critical = true
		det.Matched = append(det.Matched, "failover")
		return det
	}

	if r, ok := firstMatch(dt.systems, norm); ok {
		det.System = r.result
		det.Matched = append(det.Matched, r.name)
	}
	if r, ok := firstMatch(dt.symptoms, norm); ok {
		det.Symptom = r.result
		det.Matched = append(det.Matched, r.name)
	}
	if det.Symptom == SymptomQueueing {
		det.System = SystemSAP
	}

	det.Critical = IsCritical(det.System, det.Symptom, det.Environment)
	return det
}

func (dt *Detector) isFailover(norm string, hasNode bool) bool {
	if !failoverRe.MatchString(norm) {
		return false
	}
	return infraRe.MatchString(norm) || hasNode || clusterAlertRe.MatchString(norm)
}

// IsCritical reports whether a classification needs immediate attention.
func IsCritical(sys System, sym Symptom, env Environment) bool {
	switch {
	case sym == SymptomFailover:
		return true
	case sys == SystemInfra && sym == SymptomDown && env == EnvProduction:
		return true
	case sys == SystemSAP && (sym == SymptomDown || sym == SymptomQueueing) && env == EnvProduction:
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
