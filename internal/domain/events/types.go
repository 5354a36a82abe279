package events

import "strings"

// EventType define el conjunto cerrado de tipos de evento de cuidado.
// @Enum FORMULA, BREASTFEED, SLEEP, PEE, POO, GROWTH, MEMO, SYMPTOM, MEDICATION
type EventType string

const (
	TypeFormula    EventType = "FORMULA"
	TypeBreastfeed EventType = "BREASTFEED"
	TypeSleep      EventType = "SLEEP"
	TypePee        EventType = "PEE"
	TypePoo        EventType = "POO"
	TypeGrowth     EventType = "GROWTH"
	TypeMemo       EventType = "MEMO"
	TypeSymptom    EventType = "SYMPTOM"
	TypeMedication EventType = "MEDICATION"
)

// typeSpec es el registro estático por tipo. startable marca los tipos que
// soportan el flujo start/complete (los memos de texto libre quedan fuera).
type typeSpec struct {
	startable bool
}

var typeRegistry = map[EventType]typeSpec{
	TypeFormula:    {startable: true},
	TypeBreastfeed: {startable: true},
	TypeSleep:      {startable: true},
	TypePee:        {startable: true},
	TypePoo:        {startable: true},
	TypeGrowth:     {startable: false},
	TypeMemo:       {startable: false},
	TypeSymptom:    {startable: false},
	TypeMedication: {startable: true},
}

// ParseEventType normaliza y valida un tipo recibido del exterior.
func ParseEventType(input string) (EventType, bool) {
	t := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if t == "" {
		return "", false
	}
	_, ok := typeRegistry[t]
	return t, ok
}

// Startable indica si el tipo admite abrir un evento en curso.
func (t EventType) Startable() bool {
	return typeRegistry[t].startable
}

// Valid reporta si el tipo pertenece al registro.
func (t EventType) Valid() bool {
	_, ok := typeRegistry[t]
	return ok
}

// State es el estado de ciclo de vida, columna explícita (no vive en metadata).
// @Enum OPEN, CLOSED, CANCELED
type State string

const (
	StateOpen     State = "OPEN"
	StateClosed   State = "CLOSED"
	StateCanceled State = "CANCELED"
)

// stateTransitions: OPEN puede cerrar o cancelar; CLOSED y CANCELED son
// terminales (CLOSED sigue siendo editable en campos, nunca en estado).
var stateTransitions = map[State][]State{
	StateOpen:     {StateClosed, StateCanceled},
	StateClosed:   {},
	StateCanceled: {},
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseState(input string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(input)))
	switch s {
	case StateOpen, StateClosed, StateCanceled:
		return s, true
	}
	return "", false
}

// Source es la procedencia del registro.
type Source string

const (
	SourceManual Source = "MANUAL"
	SourceVoice  Source = "VOICE"
	SourceImport Source = "IMPORT"
	SourceSeed   Source = "SEED"
)

func ParseSource(input string) (Source, bool) {
	s := Source(strings.ToUpper(strings.TrimSpace(input)))
	switch s {
	case SourceManual, SourceVoice, SourceImport, SourceSeed:
		return s, true
	}
	return "", false
}

// EntryMode describe cómo se produjo cada mutación. Se escribe siempre en
// metadata por el servicio, nunca se acepta del patch del caller.
type EntryMode string

const (
	EntryModeForm     EntryMode = "manual_form"
	EntryModeStart    EntryMode = "manual_start"
	EntryModeComplete EntryMode = "manual_complete"
	EntryModeEdit     EntryMode = "manual_edit"
	EntryModeCancel   EntryMode = "manual_cancel"
	EntryModeSeed     EntryMode = "seed"
)
