package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainTimeline separates timeline digests from any other hash of the
// same bytes. The version suffix allows the layout to change.
const DomainTimeline = "udflow/timeline/v1"

// hashWithDomain returns hex(SHA256(domain || 0x00 || data)).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// timelineDigest is the hashed form of an instance. Delivered counts are
// left out: they depend on who was subscribed, not on what was folded.
type timelineDigest struct {
	Name         string          `json:"name"`
	InitialKind  string          `json:"initial_kind"`
	InitialState json.RawMessage `json:"initial_state"`
	Steps        []digestEntry   `json:"steps"`
}

type digestEntry struct {
	Seq    int64           `json:"seq"`
	Kind   string          `json:"kind"`
	Value  json.RawMessage `json:"value"`
	Effect bool            `json:"effect,omitempty"`
	Result string          `json:"result,omitempty"`
}

// Digest returns a content hash of everything instance id recorded: its
// initial state, every fold and every effect, in timeline order. Two
// instances that folded the same results into the same states have the same
// digest regardless of their ids.
func (j *Journal) Digest(ctx context.Context, id string) (string, error) {
	feat, err := j.GetFeature(ctx, id)
	if err != nil {
		return "", err
	}
	timeline, err := j.Timeline(ctx, id)
	if err != nil {
		return "", err
	}

	d := timelineDigest{
		Name:         feat.Name,
		InitialKind:  feat.InitialKind,
		InitialState: feat.InitialState,
		Steps:        make([]digestEntry, 0, len(timeline)),
	}
	for _, e := range timeline {
		if e.Effect != nil {
			d.Steps = append(d.Steps, digestEntry{
				Seq:    e.Seq,
				Kind:   e.Effect.Kind,
				Value:  e.Effect.Payload,
				Effect: true,
			})
			continue
		}
		d.Steps = append(d.Steps, digestEntry{
			Seq:    e.Seq,
			Kind:   e.Transition.StateKind,
			Value:  e.Transition.State,
			Result: e.Transition.ResultKind,
		})
	}

	data, err := Canonical(d)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", id, err)
	}
	return hashWithDomain(DomainTimeline, data), nil
}
