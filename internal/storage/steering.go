package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valter-silva-au/taskdeck/internal/logging"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// HeartbeatResult is what a polling process gets back from one heartbeat:
// every whisper appended since its last poll, already acknowledged.
type HeartbeatResult struct {
	Whispers     []models.SteeringMessage `json:"whispers"`
	WhisperCount int                      `json:"whisper_count"`
	Record       *models.ProcessStatusRecord
}

// SteeringStore delivers operator instructions to running agent processes.
// Each process id owns an append-only whisper log and a status record whose
// last_whisper_index cursor marks how far delivery has advanced. Exactly-once
// delivery holds for a single in-flight poller per process id, which is the
// model: a process id denotes one logical agent run.
type SteeringStore interface {
	Send(processID, instruction string, priority models.WhisperPriority) error
	Heartbeat(processID, status, nextAction string) (*HeartbeatResult, error)
	GetProcess(processID string) (*models.ProcessStatusRecord, error)
	ListProcesses() ([]*models.ProcessStatusRecord, error)
}

type fileSteeringStore struct {
	controlDir string
	now        func() time.Time
	pid        func() int
}

// SteeringOption customizes a steering store; used by tests.
type SteeringOption func(*fileSteeringStore)

// WithSteeringClock overrides the store's time source.
func WithSteeringClock(now func() time.Time) SteeringOption {
	return func(s *fileSteeringStore) { s.now = now }
}

// NewSteeringStore creates a SteeringStore rooted at controlDir and ensures
// the processes directory exists.
func NewSteeringStore(controlDir string, opts ...SteeringOption) (SteeringStore, error) {
	s := &fileSteeringStore{
		controlDir: controlDir,
		now:        func() time.Time { return time.Now().UTC() },
		pid:        os.Getpid,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.processesDir(), 0o750); err != nil {
		return nil, fmt.Errorf("creating processes directory: %w", err)
	}
	return s, nil
}

func (s *fileSteeringStore) processesDir() string {
	return filepath.Join(s.controlDir, "processes")
}

func (s *fileSteeringStore) recordPath(processID string) string {
	return filepath.Join(s.processesDir(), processID+".json")
}

func (s *fileSteeringStore) whisperPath(processID string) string {
	return filepath.Join(s.processesDir(), processID+".whisper.jsonl")
}

// Send appends one whisper to the process's log. The whole entry goes out in
// a single write call on an O_APPEND handle, so concurrent senders never
// interleave within a line.
func (s *fileSteeringStore) Send(processID, instruction string, priority models.WhisperPriority) error {
	if processID == "" {
		return &ValidationError{Field: "process_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(instruction) == "" {
		return &ValidationError{Field: "instruction", Reason: "must not be empty"}
	}
	if priority == "" {
		priority = models.WhisperNormal
	}
	if !models.ValidWhisperPriority(priority) {
		return &ValidationError{Field: "priority", Value: string(priority), Reason: "must be one of normal, urgent, abort"}
	}

	msg := models.SteeringMessage{
		Instruction: instruction,
		Priority:    priority,
		Timestamp:   s.now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling whisper: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.whisperPath(processID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening whisper log for %s: %w", processID, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending whisper for %s: %w", processID, err)
	}

	logging.Debug().Str("process_id", processID).Str("priority", string(priority)).Msg("whisper sent")
	return nil
}

// readWhispers loads the full whisper log for a process. Malformed lines are
// skipped but still occupy a log position, keeping cursors stable.
func (s *fileSteeringStore) readWhispers(processID string) ([]models.SteeringMessage, int, error) {
	f, err := os.Open(s.whisperPath(processID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening whisper log for %s: %w", processID, err)
	}
	defer func() { _ = f.Close() }()

	var messages []models.SteeringMessage
	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++
		var msg models.SteeringMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Warn().Str("process_id", processID).Err(err).Msg("skipping malformed whisper line")
			messages = append(messages, models.SteeringMessage{})
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scanning whisper log for %s: %w", processID, err)
	}

	return messages, lines, nil
}

// Heartbeat couples the liveness report with message delivery: it collects
// every whisper past the process's cursor, advances the cursor to the log's
// new length, and persists cursor plus the caller-supplied status fields in
// one atomic record write.
func (s *fileSteeringStore) Heartbeat(processID, status, nextAction string) (*HeartbeatResult, error) {
	if processID == "" {
		return nil, &ValidationError{Field: "process_id", Reason: "must not be empty"}
	}

	record, err := s.loadRecord(processID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if record == nil {
		record = &models.ProcessStatusRecord{
			ID:        processID,
			Status:    "running",
			StartedAt: now,
		}
	}

	messages, total, err := s.readWhispers(processID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat for %s: %w", processID, err)
	}

	cursor := record.LastWhisperIndex
	if cursor > total {
		// A truncated log should not wedge delivery forever.
		cursor = total
	}
	if cursor < 0 {
		// A corrupt record must not panic; redelivery beats a crash.
		cursor = 0
	}

	var fresh []models.SteeringMessage
	for _, msg := range messages[cursor:] {
		if msg.Instruction == "" {
			continue // malformed placeholder line
		}
		fresh = append(fresh, msg)
	}

	record.PID = s.pid()
	record.Status = "running"
	record.LastHeartbeat = now
	record.LastWhisperIndex = total
	record.HeartbeatStatus = status
	record.HeartbeatNextAction = nextAction

	if err := s.saveRecord(record); err != nil {
		return nil, fmt.Errorf("heartbeat for %s: %w", processID, err)
	}

	return &HeartbeatResult{
		Whispers:     fresh,
		WhisperCount: len(fresh),
		Record:       record,
	}, nil
}

// GetProcess returns the status record for a process id.
func (s *fileSteeringStore) GetProcess(processID string) (*models.ProcessStatusRecord, error) {
	record, err := s.loadRecord(processID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &NotFoundError{ID: processID}
	}
	return record, nil
}

// ListProcesses returns every known process status record.
func (s *fileSteeringStore) ListProcesses() ([]*models.ProcessStatusRecord, error) {
	entries, err := os.ReadDir(s.processesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading processes directory: %w", err)
	}

	var records []*models.ProcessStatusRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		record, err := s.loadRecord(strings.TrimSuffix(name, ".json"))
		if err != nil || record == nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// loadRecord returns the process record, or nil when none exists yet.
func (s *fileSteeringStore) loadRecord(processID string) (*models.ProcessStatusRecord, error) {
	data, err := os.ReadFile(s.recordPath(processID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading process record for %s: %w", processID, err)
	}
	var record models.ProcessStatusRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parsing process record for %s: %w", processID, err)
	}
	return &record, nil
}

// saveRecord writes the process record atomically (temp then rename) so a
// concurrent reader never sees a torn cursor.
func (s *fileSteeringStore) saveRecord(record *models.ProcessStatusRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling process record for %s: %w", record.ID, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.processesDir(), ".tmp-"+record.ID+"-*")
	if err != nil {
		return fmt.Errorf("creating temp process record for %s: %w", record.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing process record for %s: %w", record.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing process record for %s: %w", record.ID, err)
	}
	if err := os.Rename(tmpName, s.recordPath(record.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("saving process record for %s: %w", record.ID, err)
	}
	return nil
}
