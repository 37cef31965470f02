package journal

import (
	"context"
	"fmt"

	"github.com/roach88/udflow/internal/feature"
)

var _ feature.Observer = (*Journal)(nil)

// Started records a new feature instance.
// Uses ON CONFLICT(id) DO NOTHING, so recording the same instance twice is
// harmless.
func (j *Journal) Started(ctx context.Context, rec feature.Started) error {
	state, err := Canonical(rec.State)
	if err != nil {
		return fmt.Errorf("record start: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO features (id, name, initial_kind, initial_state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Feature, feature.KindOf(rec.State), string(state))
	if err != nil {
		return fmt.Errorf("record start: %w", err)
	}
	return nil
}

// Folded records one transition.
func (j *Journal) Folded(ctx context.Context, rec feature.Folded) error {
	result, err := Canonical(rec.Result)
	if err != nil {
		return fmt.Errorf("record fold %d: result: %w", rec.Seq, err)
	}
	state, err := Canonical(rec.State)
	if err != nil {
		return fmt.Errorf("record fold %d: state: %w", rec.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transitions
		(feature_id, seq, result_kind, result, state_kind, state, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_id, seq) DO NOTHING
	`,
		rec.ID,
		rec.Seq,
		feature.KindOf(rec.Result),
		string(result),
		feature.KindOf(rec.State),
		string(state),
		rec.Changed,
	)
	if err != nil {
		return fmt.Errorf("record fold %d: %w", rec.Seq, err)
	}
	return nil
}

// Emitted records one effect emission.
func (j *Journal) Emitted(ctx context.Context, rec feature.Emitted) error {
	effect, err := Canonical(rec.Effect)
	if err != nil {
		return fmt.Errorf("record effect %d: %w", rec.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO effects (feature_id, seq, effect_kind, effect, delivered)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Seq, feature.KindOf(rec.Effect), string(effect), rec.Delivered)
	if err != nil {
		return fmt.Errorf("record effect %d: %w", rec.Seq, err)
	}
	return nil
}
