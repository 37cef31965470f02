package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrNotFound is returned when a feature instance is not in the journal.
var ErrNotFound = errors.New("journal: feature not found")

// Feature is a recorded feature instance.
type Feature struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	InitialKind  string          `json:"initial_kind"`
	InitialState json.RawMessage `json:"initial_state"`
}

// Transition is one recorded fold.
type Transition struct {
	Seq        int64           `json:"seq"`
	ResultKind string          `json:"result_kind"`
	Result     json.RawMessage `json:"result"`
	StateKind  string          `json:"state_kind"`
	State      json.RawMessage `json:"state"`
	Changed    bool            `json:"changed"`
}

// Effect is one recorded effect emission.
type Effect struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Delivered int             `json:"delivered"`
}

// ListFeatures returns every recorded instance, oldest first. Instance ids
// are UUIDv7, so id order is creation order.
func (j *Journal) ListFeatures(ctx context.Context) ([]Feature, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, name, initial_kind, initial_state
		FROM features
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	features := []Feature{}
	for rows.Next() {
		var f Feature
		var state string
		if err := rows.Scan(&f.ID, &f.Name, &f.InitialKind, &state); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		f.InitialState = json.RawMessage(state)
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	return features, nil
}

// GetFeature returns one recorded instance, or ErrNotFound.
func (j *Journal) GetFeature(ctx context.Context, id string) (Feature, error) {
	var f Feature
	var state string
	err := j.db.QueryRowContext(ctx, `
		SELECT id, name, initial_kind, initial_state
		FROM features
		WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.InitialKind, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return Feature{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Feature{}, fmt.Errorf("query feature %s: %w", id, err)
	}
	f.InitialState = json.RawMessage(state)
	return f, nil
}

// ReadTransitions returns the folds of an instance in seq order.
// Returns an empty slice, not nil, when there are none.
func (j *Journal) ReadTransitions(ctx context.Context, id string) ([]Transition, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, result_kind, result, state_kind, state, changed
		FROM transitions
		WHERE feature_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []Transition{}
	for rows.Next() {
		var t Transition
		var result, state string
		if err := rows.Scan(&t.Seq, &t.ResultKind, &result, &t.StateKind, &state, &t.Changed); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Result = json.RawMessage(result)
		t.State = json.RawMessage(state)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return transitions, nil
}

// ReadEffects returns the effects of an instance in emission order.
// Returns an empty slice, not nil, when there are none.
func (j *Journal) ReadEffects(ctx context.Context, id string) ([]Effect, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, effect_kind, effect, delivered
		FROM effects
		WHERE feature_id = ?
		ORDER BY seq ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	effects := []Effect{}
	for rows.Next() {
		var e Effect
		var payload string
		if err := rows.Scan(&e.Seq, &e.Kind, &payload, &e.Delivered); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return effects, nil
}

// Entry is one line of a timeline: either a transition or an effect.
type Entry struct {
	Seq        int64       `json:"seq"`
	Transition *Transition `json:"transition,omitempty"`
	Effect     *Effect     `json:"effect,omitempty"`
}

// Timeline interleaves the transitions and effects of an instance by seq.
// Within one seq the transition comes first, then its effects.
func (j *Journal) Timeline(ctx context.Context, id string) ([]Entry, error) {
	transitions, err := j.ReadTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	effects, err := j.ReadEffects(ctx, id)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(transitions)+len(effects))
	for i := range transitions {
		entries = append(entries, Entry{Seq: transitions[i].Seq, Transition: &transitions[i]})
	}
	for i := range effects {
		entries = append(entries, Entry{Seq: effects[i].Seq, Effect: &effects[i]})
	}
	// Stable: effects keep emission order within a seq.
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.Seq != b.Seq {
			if a.Seq < b.Seq {
				return -1
			}
			return 1
		}
		return rank(a) - rank(b)
	})
	return entries, nil
}

func rank(e Entry) int {
	if e.Transition != nil {
		return 0
	}
	return 1
}
