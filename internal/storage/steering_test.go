package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

func newTestSteering(t *testing.T) (SteeringStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSteeringStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestSendValidation(t *testing.T) {
	store, _ := newTestSteering(t)

	assert.True(t, IsValidation(store.Send("", "do x", models.WhisperNormal)))
	assert.True(t, IsValidation(store.Send("agent-1", "  ", models.WhisperNormal)))
	assert.True(t, IsValidation(store.Send("agent-1", "do x", "loud")))

	// Empty priority defaults to normal.
	require.NoError(t, store.Send("agent-1", "do x", ""))
}

func TestHeartbeatCreatesRecord(t *testing.T) {
	store, _ := newTestSteering(t)

	result, err := store.Heartbeat("agent-1", "compiling", "run tests")
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	assert.Equal(t, "agent-1", result.Record.ID)
	assert.Equal(t, "running", result.Record.Status)
	assert.False(t, result.Record.StartedAt.IsZero())
	assert.False(t, result.Record.LastHeartbeat.IsZero())
	assert.Equal(t, "compiling", result.Record.HeartbeatStatus)
	assert.Equal(t, "run tests", result.Record.HeartbeatNextAction)
	assert.Empty(t, result.Whispers)

	// The record is persisted and listable.
	records, err := store.ListProcesses()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "agent-1", records[0].ID)
}

func TestWhisperDeliveredExactlyOnce(t *testing.T) {
	store, _ := newTestSteering(t)

	require.NoError(t, store.Send("agent-1", "focus on the parser", models.WhisperNormal))
	require.NoError(t, store.Send("agent-1", "stop after this task", models.WhisperUrgent))

	first, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	require.Equal(t, 2, first.WhisperCount)
	assert.Equal(t, "focus on the parser", first.Whispers[0].Instruction)
	assert.Equal(t, models.WhisperUrgent, first.Whispers[1].Priority)

	// Nothing new: the same messages never come back.
	second, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	assert.Zero(t, second.WhisperCount)

	// Only messages past the cursor are delivered.
	require.NoError(t, store.Send("agent-1", "wrap up", models.WhisperAbort))
	third, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, third.WhisperCount)
	assert.Equal(t, "wrap up", third.Whispers[0].Instruction)
}

func TestWhispersAreIsolatedPerProcess(t *testing.T) {
	store, _ := newTestSteering(t)

	require.NoError(t, store.Send("agent-1", "for one", models.WhisperNormal))
	require.NoError(t, store.Send("agent-2", "for two", models.WhisperNormal))

	one, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, one.WhisperCount)
	assert.Equal(t, "for one", one.Whispers[0].Instruction)

	two, err := store.Heartbeat("agent-2", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, two.WhisperCount)
	assert.Equal(t, "for two", two.Whispers[0].Instruction)
}

func TestMalformedLinesKeepCursorStable(t *testing.T) {
	store, dir := newTestSteering(t)

	require.NoError(t, store.Send("agent-1", "before", models.WhisperNormal))

	// A torn write in the middle of the log.
	logPath := filepath.Join(dir, "processes", "agent-1.whisper.jsonl")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("{half a whisp\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.Send("agent-1", "after", models.WhisperNormal))

	result, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)

	// The malformed line occupies a position but is not delivered.
	require.Equal(t, 2, result.WhisperCount)
	assert.Equal(t, "before", result.Whispers[0].Instruction)
	assert.Equal(t, "after", result.Whispers[1].Instruction)
	assert.Equal(t, 3, result.Record.LastWhisperIndex)

	// And subsequent sends still deliver exactly once.
	require.NoError(t, store.Send("agent-1", "final", models.WhisperNormal))
	next, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, next.WhisperCount)
	assert.Equal(t, "final", next.Whispers[0].Instruction)
}

func TestTruncatedLogClampsCursor(t *testing.T) {
	store, dir := newTestSteering(t)

	require.NoError(t, store.Send("agent-1", "one", models.WhisperNormal))
	require.NoError(t, store.Send("agent-1", "two", models.WhisperNormal))
	_, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)

	// Someone truncated the log out from under us.
	logPath := filepath.Join(dir, "processes", "agent-1.whisper.jsonl")
	require.NoError(t, os.Truncate(logPath, 0))

	result, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	assert.Zero(t, result.WhisperCount)
	assert.Zero(t, result.Record.LastWhisperIndex)

	// Delivery resumes from the truncated log.
	require.NoError(t, store.Send("agent-1", "fresh start", models.WhisperNormal))
	next, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, next.WhisperCount)
}

func TestNegativeCursorClampsToStart(t *testing.T) {
	store, dir := newTestSteering(t)

	require.NoError(t, store.Send("agent-1", "one", models.WhisperNormal))
	require.NoError(t, store.Send("agent-1", "two", models.WhisperNormal))
	_, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)

	// A hand-edited record with a nonsense cursor must not crash delivery.
	recordPath := filepath.Join(dir, "processes", "agent-1.json")
	data, err := os.ReadFile(recordPath)
	require.NoError(t, err)

	var record models.ProcessStatusRecord
	require.NoError(t, json.Unmarshal(data, &record))
	record.LastWhisperIndex = -3
	data, err = json.Marshal(&record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(recordPath, data, 0o644))

	result, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.WhisperCount)
	assert.Equal(t, 2, result.Record.LastWhisperIndex)
}

func TestHeartbeatPreservesStartedAt(t *testing.T) {
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, err := NewSteeringStore(t.TempDir(), WithSteeringClock(func() time.Time { return current }))
	require.NoError(t, err)

	first, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)

	current = current.Add(5 * time.Minute)
	second, err := store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)

	assert.Equal(t, first.Record.StartedAt, second.Record.StartedAt)
	assert.True(t, second.Record.LastHeartbeat.After(first.Record.LastHeartbeat))
}

func TestGetProcess(t *testing.T) {
	store, _ := newTestSteering(t)

	_, err := store.GetProcess("missing")
	assert.True(t, IsNotFound(err))

	_, err = store.Heartbeat("agent-1", "", "")
	require.NoError(t, err)

	record, err := store.GetProcess("agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", record.ID)
}
