package effect

import (
	"fmt"
	"slices"
)

// Combined describes how effects map onto actuators: *Mono, *Stereo or
// *Sequential.
type Combined interface {
	Validate() error
	isCombined()
}

// Mono plays the same effect on every available actuator.
type Mono struct {
	Effect Effect
}

func (*Mono) isCombined() {}

func (m *Mono) Validate() error {
	if m.Effect == nil {
		return fmt.Errorf("%w: mono effect is empty", ErrInvalidEffect)
	}
	return m.Effect.Validate()
}

// Stereo plays a distinct effect on each listed actuator.
type Stereo struct {
	Effects map[int]Effect
}

func (*Stereo) isCombined() {}

// NewStereo starts an empty stereo mapping.
func NewStereo() *Stereo { return &Stereo{Effects: map[int]Effect{}} }

// Add maps an effect to an actuator id.
func (s *Stereo) Add(actuatorID int, e Effect) *Stereo {
	s.Effects[actuatorID] = e
	return s
}

// ActuatorIDs returns the mapped ids in ascending order.
func (s *Stereo) ActuatorIDs() []int {
	ids := make([]int, 0, len(s.Effects))
	for id := range s.Effects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Stereo) Validate() error {
	if len(s.Effects) == 0 {
		return fmt.Errorf("%w: stereo effect maps no actuators", ErrInvalidEffect)
	}
	for _, id := range s.ActuatorIDs() {
		if err := s.Effects[id].Validate(); err != nil {
			return fmt.Errorf("actuator %d: %w", id, err)
		}
	}
	return nil
}

// Sequential plays its parts one after the other, each after its delay.
type Sequential struct {
	Parts    []Combined
	DelaysMs []int64
}

func (*Sequential) isCombined() {}

// Then appends a part that starts delayMs after the previous one finishes.
func (s *Sequential) Then(part Combined, delayMs int64) *Sequential {
	s.Parts = append(s.Parts, part)
	s.DelaysMs = append(s.DelaysMs, delayMs)
	return s
}

func (s *Sequential) Validate() error {
	if len(s.Parts) == 0 {
		return fmt.Errorf("%w: sequential effect has no parts", ErrInvalidEffect)
	}
	if len(s.Parts) != len(s.DelaysMs) {
		return fmt.Errorf("%w: %d sequential parts but %d delays", ErrInvalidEffect, len(s.Parts), len(s.DelaysMs))
	}
	for i, p := range s.Parts {
		if s.DelaysMs[i] < 0 {
			return fmt.Errorf("%w: sequential delay must be >= 0", ErrInvalidEffect)
		}
		switch p.(type) {
		case *Mono, *Stereo:
		default:
			return fmt.Errorf("%w: sequential part %d must be mono or stereo", ErrInvalidEffect, i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// AsSequential views any combined effect as a sequence. Mono and stereo
// effects become a single part with no delay.
func AsSequential(c Combined) *Sequential {
	if s, ok := c.(*Sequential); ok {
		return s
	}
	return &Sequential{Parts: []Combined{c}, DelaysMs: []int64{0}}
}
