package triage

// Severity is the priority tier of a classified incident.
type Severity string

const (
	SeverityP1 Severity = "p1"
	SeverityP2 Severity = "p2"
)

type severityRow struct {
	system  System // "" matches any
	symptom Symptom
	env     Environment // "" matches any
	result  Severity
}

// Evaluated top-down, first match wins. Anything that falls through is P2.
var severityTable = []severityRow{
	{symptom: SymptomFailover, result: SeverityP1},
	{system: SystemSAP, symptom: SymptomQueueing, env: EnvProduction, result: SeverityP1},
	{system: SystemSAP, symptom: SymptomDown, env: EnvProduction, result: SeverityP1},
	{system: SystemInfra, symptom: SymptomDown, env: EnvProduction, result: SeverityP1},
}

func (r severityRow) matches(sys System, sym Symptom, env Environment) bool {
	return (r.system == "" || r.system == sys) &&
		r.symptom == sym &&
		(r.env == "" || r.env == env)
}

// Classify maps a classification onto P1 or P2.
func Classify(sys System, sym Symptom, env Environment) Severity {
	for _, row := range severityTable {
		if row.matches(sys, sym, env) {
			return row.result
		}
	}
	return SeverityP2
}

// Label is the display form of the tier.
func (s Severity) Label() string {
	if s == SeverityP1 {
		return "P1"
	}
	return "P2"
}
