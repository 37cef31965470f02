package journal

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/udflow/internal/feature"
)

// Reducer is the HandleResult of a feature definition.
type Reducer[S, R, F any] func(ctx context.Context, emit feature.Emitter[F], previous S, result R) S

// ResultDecoder rebuilds a result from its recorded kind and payload.
type ResultDecoder[R any] func(kind string, payload []byte) (R, error)

// Divergence describes the first point where replay disagrees with the
// journal.
type Divergence struct {
	Seq int64 `json:"seq"`
	// What names the compared value: "initial", "state" or "effects".
	What     string `json:"what"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("seq %d: %s diverged: recorded %s, replayed %s", d.Seq, d.What, d.Recorded, d.Replayed)
}

// ReplayResult summarises a replay.
type ReplayResult struct {
	FeatureID   string      `json:"feature_id"`
	Transitions int         `json:"transitions"`
	Effects     int         `json:"effects"`
	Divergence  *Divergence `json:"divergence,omitempty"`
}

// OK reports whether the replay matched the journal.
func (r *ReplayResult) OK() bool {
	return r.Divergence == nil
}

// Replay re-folds the recorded results of instance id through reduce,
// starting from initial, and compares every produced state and the kinds of
// the effects emitted during each fold with what was recorded.
//
// Replay stops at the first divergence. An error is returned only when the
// journal cannot be read or a result cannot be decoded.
func Replay[S, R, F any](ctx context.Context, j *Journal, id string, initial S, decode ResultDecoder[R], reduce Reducer[S, R, F]) (*ReplayResult, error) {
	feat, err := j.GetFeature(ctx, id)
	if err != nil {
		return nil, err
	}
	transitions, err := j.ReadTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	effects, err := j.ReadEffects(ctx, id)
	if err != nil {
		return nil, err
	}

	recordedEffects := make(map[int64][]string)
	for _, e := range effects {
		recordedEffects[e.Seq] = append(recordedEffects[e.Seq], e.Kind)
	}

	res := &ReplayResult{FeatureID: id}

	got, err := describe(initial)
	if err != nil {
		return nil, err
	}
	if want := feat.InitialKind + " " + string(feat.InitialState); got != want {
		res.Divergence = &Divergence{What: "initial", Recorded: want, Replayed: got}
		return res, nil
	}

	state := initial
	for _, t := range transitions {
		result, err := decode(t.ResultKind, t.Result)
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", t.Seq, err)
		}

		emit := &collector[F]{}
		state = reduce(ctx, emit, state, result)
		res.Transitions++

		got, err := describe(state)
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", t.Seq, err)
		}
		if want := t.StateKind + " " + string(t.State); got != want {
			res.Divergence = &Divergence{Seq: t.Seq, What: "state", Recorded: want, Replayed: got}
			return res, nil
		}

		want := recordedEffects[t.Seq]
		if !slices.Equal(want, emit.kinds) {
			res.Divergence = &Divergence{
				Seq:      t.Seq,
				What:     "effects",
				Recorded: fmt.Sprint(want),
				Replayed: fmt.Sprint(emit.kinds),
			}
			return res, nil
		}
		res.Effects += len(emit.kinds)
	}

	j.logger.Debug("replay matched", "feature_id", id, "transitions", res.Transitions)
	return res, nil
}

// describe renders a value as "<kind> <canonical json>".
func describe(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString(feature.KindOf(v))
	buf.WriteByte(' ')
	buf.Write(data)
	return buf.String(), nil
}

// collector is the Emitter used during replay. It records effect kinds
// instead of delivering effects.
type collector[F any] struct {
	kinds []string
}

func (c *collector[F]) EmitEffect(_ context.Context, effect F) error {
	c.kinds = append(c.kinds, feature.KindOf(effect))
	return nil
}
