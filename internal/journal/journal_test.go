package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/udflow/internal/download"
	"github.com/roach88/udflow/internal/feature"
	"github.com/roach88/udflow/internal/testutil"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

type idleState struct{}

func (idleState) Kind() string { return "idle" }

type tickResult struct {
	Percent int `json:"percent"`
}

func (tickResult) Kind() string { return "tick" }

type toast struct{}

func (toast) Kind() string { return "toast" }

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	version, err := j.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, j.Close())
	}

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	for _, table := range []string{"features", "transitions", "effects"} {
		var name string
		err := j.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpen_InMemory(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	features, err := j.ListFeatures(context.Background())
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestOpen_MigratesOldJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.db.Exec("DROP INDEX idx_effects_feature_seq")
	require.NoError(t, err)
	_, err = j.db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	var name string
	err = j.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_effects_feature_seq'").Scan(&name)
	assert.NoError(t, err)
}

func TestJournal_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	require.NoError(t, j.Started(ctx, feature.Started{Feature: "demo", ID: "f-1", State: idleState{}}))
	require.NoError(t, j.Started(ctx, feature.Started{Feature: "demo", ID: "f-1", State: idleState{}}), "duplicate start is ignored")

	require.NoError(t, j.Folded(ctx, feature.Folded{
		Feature: "demo", ID: "f-1", Seq: 2,
		Result: tickResult{Percent: 9}, Previous: idleState{}, State: idleState{}, Changed: false,
	}))
	require.NoError(t, j.Folded(ctx, feature.Folded{
		Feature: "demo", ID: "f-1", Seq: 1,
		Result: tickResult{Percent: 8}, Previous: idleState{}, State: idleState{}, Changed: true,
	}))
	require.NoError(t, j.Emitted(ctx, feature.Emitted{Feature: "demo", ID: "f-1", Seq: 1, Effect: toast{}, Delivered: 2}))

	features, err := j.ListFeatures(ctx)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "demo", features[0].Name)
	assert.Equal(t, "idle", features[0].InitialKind)
	assert.JSONEq(t, `{}`, string(features[0].InitialState))

	transitions, err := j.ReadTransitions(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, int64(1), transitions[0].Seq, "ordered by seq")
	assert.Equal(t, "tick", transitions[0].ResultKind)
	assert.Equal(t, `{"percent":8}`, string(transitions[0].Result))
	assert.True(t, transitions[0].Changed)
	assert.False(t, transitions[1].Changed)

	effects, err := j.ReadEffects(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, "toast", effects[0].Kind)
	assert.Equal(t, 2, effects[0].Delivered)

	timeline, err := j.Timeline(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.NotNil(t, timeline[0].Transition)
	assert.NotNil(t, timeline[1].Effect, "effect follows the transition of its seq")
	assert.Equal(t, int64(2), timeline[2].Seq)
}

func TestJournal_ReadEmpty(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	transitions, err := j.ReadTransitions(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, transitions)
	assert.Empty(t, transitions)

	_, err = j.GetFeature(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJournal_FoldRequiresFeature(t *testing.T) {
	j := openTestJournal(t)

	err := j.Folded(context.Background(), feature.Folded{ID: "ghost", Seq: 1, Result: tickResult{}, State: idleState{}})
	assert.Error(t, err, "foreign key enforced")
}

// recordDownload runs one complete download with j attached and returns the
// instance id.
func recordDownload(t *testing.T, j *Journal) string {
	t.Helper()
	return recordDownloadAs(t, j, "download-1")
}

func recordDownloadAs(t *testing.T, j *Journal, id string) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := download.NewDownloader(0, nil)
	p, err := download.New(ctx, d,
		feature.WithObserver(j),
		feature.WithIDGenerator(feature.NewFixedGenerator(id)),
	)
	require.NoError(t, err)

	effects := p.Effects(ctx)
	p.Process(download.ClickEvent{State: download.IdleState{}})
	testutil.Receive(t, effects)
	testutil.Receive(t, effects)

	// initial idle + 101 ticks + completed + idle
	require.Eventually(t, func() bool {
		ts, err := j.ReadTransitions(context.Background(), p.ID())
		return err == nil && len(ts) == 104
	}, testutil.DefaultWait, 5*time.Millisecond)

	p.Close()
	return p.ID()
}

func TestReplay_RecordedDownloadMatches(t *testing.T) {
	j := openTestJournal(t)
	id := recordDownload(t, j)

	res, err := Replay(context.Background(), j, id, download.State(download.IdleState{}), download.DecodeResult, download.Reduce)
	require.NoError(t, err)

	assert.True(t, res.OK(), "divergence: %v", res.Divergence)
	assert.Equal(t, 104, res.Transitions)
	assert.Equal(t, 2, res.Effects)
}

func TestReplay_InterruptedRunMatches(t *testing.T) {
	j := openTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := download.NewDownloader(0, nil)
	p, err := download.New(ctx, d,
		feature.WithObserver(j),
		feature.WithEffectBuffer(0),
		feature.WithIDGenerator(feature.NewFixedGenerator("download-interrupted")),
	)
	require.NoError(t, err)

	// The forwarder takes Halfway and then holds it, so the Completed fold
	// blocks emitting until the scope ends.
	_ = p.Effects(ctx)
	p.Process(download.ClickEvent{State: download.IdleState{}})

	// initial idle + 101 ticks
	require.Eventually(t, func() bool {
		ts, err := j.ReadTransitions(context.Background(), p.ID())
		return err == nil && len(ts) >= 102
	}, testutil.DefaultWait, 5*time.Millisecond)
	p.Close()

	res, err := Replay(context.Background(), j, p.ID(), download.State(download.IdleState{}), download.DecodeResult, download.Reduce)
	require.NoError(t, err)
	assert.True(t, res.OK(), "divergence: %v", res.Divergence)
}

func TestReplay_DetectsTamperedState(t *testing.T) {
	j := openTestJournal(t)
	id := recordDownload(t, j)

	_, err := j.db.Exec(`UPDATE transitions SET state = '{"percent":99,"show_toast":false}' WHERE feature_id = ? AND seq = 10`, id)
	require.NoError(t, err)

	res, err := Replay(context.Background(), j, id, download.State(download.IdleState{}), download.DecodeResult, download.Reduce)
	require.NoError(t, err)

	require.False(t, res.OK())
	assert.Equal(t, int64(10), res.Divergence.Seq)
	assert.Equal(t, "state", res.Divergence.What)
	assert.Contains(t, res.Divergence.String(), "seq 10")
}

func TestReplay_DetectsMissingEffect(t *testing.T) {
	j := openTestJournal(t)
	id := recordDownload(t, j)

	silent := func(ctx context.Context, _ feature.Emitter[download.Effect], previous download.State, result download.Result) download.State {
		return download.Reduce(ctx, discard{}, previous, result)
	}

	res, err := Replay(context.Background(), j, id, download.State(download.IdleState{}), download.DecodeResult, silent)
	require.NoError(t, err)

	require.False(t, res.OK())
	assert.Equal(t, "effects", res.Divergence.What)
	assert.Equal(t, "[halfway]", res.Divergence.Recorded)
}

func TestReplay_DetectsWrongInitial(t *testing.T) {
	j := openTestJournal(t)
	id := recordDownload(t, j)

	res, err := Replay(context.Background(), j, id, download.State(download.DownloadingState{}), download.DecodeResult, download.Reduce)
	require.NoError(t, err)

	require.False(t, res.OK())
	assert.Equal(t, "initial", res.Divergence.What)
}

func TestReplay_UnknownFeature(t *testing.T) {
	j := openTestJournal(t)

	_, err := Replay(context.Background(), j, "nope", download.State(download.IdleState{}), download.DecodeResult, download.Reduce)
	assert.ErrorIs(t, err, ErrNotFound)
}

type discard struct{}

func (discard) EmitEffect(context.Context, download.Effect) error { return nil }
