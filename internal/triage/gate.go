package triage

import "strings"

// Gate holds the authorization codes that unlock L3 escalation.
type Gate struct {
	codes map[string]struct{}
}

// NewGate builds a gate from an allow-list. Codes are compared trimmed and case-insensitive.
func NewGate(codes ...string) *Gate {
	g := &Gate{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		if c = canonicalCode(c); c != "" {
			g.codes[c] = struct{}{}
		}
	}
	return g
}

// Authorize reports whether code is on the allow-list.
func (g *Gate) Authorize(code string) bool {
	c := canonicalCode(code)
	if c == "" {
		return false
	}
	_, ok := g.codes[c]
	return ok
}

// Grant enables L3 on d when code is valid and moves it back to
// summary_ready. On failure d is left untouched: it stays in
// awaiting_l3_auth so the reporter can retry the code without asking for
// escalation again.
func (g *Gate) Grant(d *Draft, code string) bool {
	if !g.Authorize(code) {
		return false
	}
	d.L3Enabled = true
	d.AwaitingL3Auth = false
	d.Stage = StageSummaryReady
	return true
}

// Revoke withdraws L3 access, keeping the incident on L2.
func (g *Gate) Revoke(d *Draft) {
	d.L3Enabled = false
	d.AwaitingL3Auth = false
	d.Stage = StageSummaryReady
}

func canonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
