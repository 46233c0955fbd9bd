package dialog

// Caller identifies who sent an event and where.
type Caller struct {
	ConversationID string
	ParticipantID  string
	Name           string
}

// Event is one inbound interaction. The concrete types are TextEvent,
// ActionEvent and MemberJoinedEvent.
type Event interface {
	From() Caller
	Kind() string
}

const (
	KindMessage      = "message"
	KindAction       = "action"
	KindMemberJoined = "member_joined"
)

// TextEvent is a free-form message.
type TextEvent struct {
	Caller Caller
	Text   string
}

func (e TextEvent) From() Caller { return e.Caller }
func (TextEvent) Kind() string   { return KindMessage }

// ActionEvent is a structured action, usually a card button.
type ActionEvent struct {
	Caller Caller
	Action string
	Fields map[string]string
}

func (e ActionEvent) From() Caller { return e.Caller }
func (ActionEvent) Kind() string   { return KindAction }

// MemberJoinedEvent is sent when someone is added to the conversation.
type MemberJoinedEvent struct {
	Caller Caller
}

func (e MemberJoinedEvent) From() Caller { return e.Caller }
func (MemberJoinedEvent) Kind() string   { return KindMemberJoined }

// Action identifiers.
const (
	ActionReportIncident    = "report_incident"
	ActionSelectSystem      = "select_system"
	ActionSelectEnvironment = "select_environment"
	ActionSelectSymptom     = "select_symptom"
	ActionShowRunbook       = "show_runbook"
	ActionContactL2         = "contact_l2"
	ActionEscalateL3        = "escalate_l3"
	ActionSubmitL3Code      = "submit_l3_code"
	ActionContactL3         = "contact_l3"
	ActionKeepL2            = "keep_l2"
	ActionMenu              = "menu"
)

// Action field names.
const (
	FieldSystem      = "system"
	FieldEnvironment = "environment"
	FieldSymptom     = "symptom"
	FieldRecipient   = "recipient"
	FieldCode        = "code"
)
