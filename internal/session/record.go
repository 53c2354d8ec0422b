package session

import (
	"encoding/json"
	"time"
)

// Step is a page of the restaurant intake flow.
type Step int

const (
	StepBusinessForm   Step = 1
	StepOperationsForm Step = 2
	StepConfirmation   Step = 3
)

func (s Step) String() string {
	switch s {
	case StepBusinessForm:
		return "business_form"
	case StepOperationsForm:
		return "operations_form"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

// Record is the resumable progress of one restaurant through the intake
// flow. ID is the restaurant identifier issued by the agency, not by us.
type Record struct {
	ID             string
	LastStep       Step
	LastUpdate     time.Time
	Form1Completed bool
	Form2Completed bool
}

// recordJSON matches the layout the onboarding front-end persists:
// lastUpdate is unix milliseconds.
type recordJSON struct {
	ID             string `json:"id"`
	LastStep       Step   `json:"lastStep"`
	LastUpdate     int64  `json:"lastUpdate"`
	Form1Completed bool   `json:"form1Completed"`
	Form2Completed bool   `json:"form2Completed"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:             r.ID,
		LastStep:       r.LastStep,
		LastUpdate:     r.LastUpdate.UnixMilli(),
		Form1Completed: r.Form1Completed,
		Form2Completed: r.Form2Completed,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		ID:             raw.ID,
		LastStep:       raw.LastStep,
		LastUpdate:     time.UnixMilli(raw.LastUpdate).UTC(),
		Form1Completed: raw.Form1Completed,
		Form2Completed: raw.Form2Completed,
	}
	return nil
}

// ResumeStep picks the page a returning restaurant lands on.
//
// A record with only the first form done goes to the confirmation page,
// the same as a fully completed one, so the operations form is skipped on
// resume. This mirrors the deployed front-end and is pending product review.
func ResumeStep(r Record) Step {
	if r.Form1Completed {
		return StepConfirmation
	}
	return StepBusinessForm
}
