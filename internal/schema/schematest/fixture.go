// Package schematest provides a shared fixture entity for engine tests.
package schematest

import (
	"fmt"

	"chronicle/internal/schema"
)

// CandidateType is the fixture's namespaced type label.
const CandidateType = "core.Candidate"

// Candidate is a small domain entity exercising every field kind: scalars,
// a flattened reference, a file path, and a getter that can fail.
type Candidate struct {
	ID      string
	Name    string
	Status  string
	Score   int
	OwnerID string // reference to core.User, flattened to its raw ID
	Resume  string // logical file path, never bytes

	// BrokenReferee simulates a lazily-loaded relation that can no longer
	// be resolved; the referee getter fails while it is set.
	Referee       string
	BrokenReferee bool
}

// CandidateDescriptor builds the fixture descriptor. Callers register it on
// a fresh registry per test.
func CandidateDescriptor() *schema.Descriptor {
	return &schema.Descriptor{
		Type:  CandidateType,
		New:   func() any { return &Candidate{} },
		GetID: func(e any) string { return e.(*Candidate).ID },
		SetID: func(e any, id string) { e.(*Candidate).ID = id },
		Fields: []schema.Field{
			{
				Name:     "name",
				Kind:     schema.KindScalar,
				Editable: true,
				Get:      func(e any) (any, error) { return e.(*Candidate).Name, nil },
				Set: func(e any, v any) error {
					s, ok := v.(string)
					if !ok {
						return fmt.Errorf("name: expected string, got %T", v)
					}
					e.(*Candidate).Name = s
					return nil
				},
			},
			{
				Name:     "status",
				Kind:     schema.KindScalar,
				Editable: true,
				Get:      func(e any) (any, error) { return e.(*Candidate).Status, nil },
				Set: func(e any, v any) error {
					s, ok := v.(string)
					if !ok {
						return fmt.Errorf("status: expected string, got %T", v)
					}
					e.(*Candidate).Status = s
					return nil
				},
			},
			{
				Name:     "score",
				Kind:     schema.KindScalar,
				Editable: true,
				Get:      func(e any) (any, error) { return e.(*Candidate).Score, nil },
				Set: func(e any, v any) error {
					switch n := v.(type) {
					case int:
						e.(*Candidate).Score = n
					case float64: // JSON round-trips numbers as float64
						e.(*Candidate).Score = int(n)
					default:
						return fmt.Errorf("score: expected number, got %T", v)
					}
					return nil
				},
			},
			{
				Name:     "owner",
				Kind:     schema.KindReference,
				Editable: true,
				Get:      func(e any) (any, error) { return e.(*Candidate).OwnerID, nil },
				Set: func(e any, v any) error {
					s, ok := v.(string)
					if !ok {
						return fmt.Errorf("owner: expected string, got %T", v)
					}
					e.(*Candidate).OwnerID = s
					return nil
				},
			},
			{
				Name: "resume",
				Kind: schema.KindFile,
				// File fields are not restorable through rollback.
				Editable: false,
				Get:      func(e any) (any, error) { return e.(*Candidate).Resume, nil },
				Set: func(e any, v any) error {
					s, ok := v.(string)
					if !ok {
						return fmt.Errorf("resume: expected string, got %T", v)
					}
					e.(*Candidate).Resume = s
					return nil
				},
			},
			{
				Name:     "referee",
				Kind:     schema.KindReference,
				Editable: true,
				Get: func(e any) (any, error) {
					c := e.(*Candidate)
					if c.BrokenReferee {
						return nil, fmt.Errorf("referee relation unresolvable")
					}
					return c.Referee, nil
				},
				Set: func(e any, v any) error {
					s, ok := v.(string)
					if !ok {
						return fmt.Errorf("referee: expected string, got %T", v)
					}
					e.(*Candidate).Referee = s
					return nil
				},
			},
		},
	}
}
