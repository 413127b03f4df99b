// Package models holds the domain types shared by the gate, prompt builder,
// compose pipeline, and stream hub.
package models

// Code is a billing/diagnosis code suggestion attached to an encounter.
// The evidence fields are optional and feed code-justification rendering,
// consulted in order: DocSupport, Details, Description, AIReasoning,
// Evidence, Gaps.
type Code struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Selected    bool   `json:"selected,omitempty"`
	DocSupport  string `json:"docSupport,omitempty"`
	Details     string `json:"details,omitempty"`
	AIReasoning string `json:"aiReasoning,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
	Gaps        string `json:"gaps,omitempty"`
}

// Suggestion is a code suggestion the clinician has accepted or denied.
type Suggestion struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
}

// Demographics carries the patient context included in prompt state.
type Demographics struct {
	Age    int    `json:"age,omitempty"`
	Sex    string `json:"sex,omitempty"`
	Region string `json:"region,omitempty"`
}
