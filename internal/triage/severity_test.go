package triage

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sys  System
		sym  Symptom
		env  Environment
		want Severity
	}{
		{"failover any system", SystemUnknown, SymptomFailover, EnvQA, SeverityP1},
		{"failover infra dev", SystemInfra, SymptomFailover, EnvDev, SeverityP1},
		{"sap queueing prod", SystemSAP, SymptomQueueing, EnvProduction, SeverityP1},
		{"sap queueing qa", SystemSAP, SymptomQueueing, EnvQA, SeverityP2},
		{"sap down prod", SystemSAP, SymptomDown, EnvProduction, SeverityP1},
		{"sap down dev", SystemSAP, SymptomDown, EnvDev, SeverityP2},
		{"infra down prod", SystemInfra, SymptomDown, EnvProduction, SeverityP1},
		{"infra down qa", SystemInfra, SymptomDown, EnvQA, SeverityP2},
		{"other down prod", SystemOther, SymptomDown, EnvProduction, SeverityP2},
		{"infra errors prod", SystemInfra, SymptomErrors, EnvProduction, SeverityP2},
		{"sap slow prod", SystemSAP, SymptomSlow, EnvProduction, SeverityP2},
		{"unknown", SystemUnknown, SymptomUnknown, EnvProduction, SeverityP2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tt.sys, tt.sym, tt.env); got != tt.want {
				t.Errorf("Classify(%s, %s, %s) = %s, want %s", tt.sys, tt.sym, tt.env, got, tt.want)
			}
		})
	}
}

// Severity must agree with the detector's critical flag for every combination.
func TestClassify_MatchesIsCritical(t *testing.T) {
	t.Parallel()

	systems := []System{SystemUnknown, SystemSAP, SystemInfra, SystemOther}
	symptoms := []Symptom{SymptomUnknown, SymptomFailover, SymptomDown, SymptomQueueing, SymptomSlow, SymptomErrors}
	envs := []Environment{EnvProduction, EnvQA, EnvDev}

	for _, sys := range systems {
		for _, sym := range symptoms {
			for _, env := range envs {
				p1 := Classify(sys, sym, env) == SeverityP1
				if crit := IsCritical(sys, sym, env); p1 != crit {
					t.Errorf("%s/%s/%s: P1=%v critical=%v", sys, sym, env, p1, crit)
				}
			}
		}
	}
}

func TestSeverity_Label(t *testing.T) {
	t.Parallel()

	if got := SeverityP1.Label(); got != "P1" {
		t.Errorf("P1 label = %q", got)
	}
	if got := SeverityP2.Label(); got != "P2" {
		t.Errorf("P2 label = %q", got)
	}
}
