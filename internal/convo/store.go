package convo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Metadata is the sidecar record kept alongside each session's turn log
// (spec §4.E/§3 Session: "a separate metadata record with {session_id,
// session_type, policy, created_at, last_updated, turn_count}").
type Metadata struct {
	SessionID   string    `json:"session_id"`
	SessionType string    `json:"session_type"`
	Policy      string    `json:"policy"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	TurnCount   int       `json:"turn_count"`
}

// Store is the append-only per-session turn log plus metadata sidecar
// (spec component E). One Store owns an entire sessions/ directory.
//
// Grounded on internal/session/storage.go's atomic temp+rename idiom and
// internal/embed/lock.go's gofrs/flock usage, generalised to per-session
// append locks rather than a single fixed lock file.
type Store struct {
	dir string

	locksMu sync.Mutex
	locks   map[string]*flock.Flock
}

// NewStore returns a Store rooted at dir (created on first write).
func NewStore(dir string) *Store {
	return &Store{dir: dir, locks: make(map[string]*flock.Flock)}
}

func (s *Store) logPath(sessionID string) string  { return filepath.Join(s.dir, sessionID+".log") }
func (s *Store) metaPath(sessionID string) string { return filepath.Join(s.dir, sessionID+".meta.json") }

func (s *Store) lockFor(sessionID string) *flock.Flock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = flock.New(s.logPath(sessionID) + ".lock")
		s.locks[sessionID] = l
	}
	return l
}

// Append writes turn as one JSON line to the session's log and updates its
// metadata's last_updated and turn_count. O(1), serialised per session.
func (s *Store) Append(sessionID string, turn TurnRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("convo: mkdir: %w", err)
	}

	l := s.lockFor(sessionID)
	if err := l.Lock(); err != nil {
		return fmt.Errorf("convo: lock session %s: %w", sessionID, err)
	}
	defer l.Unlock()

	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("convo: marshal turn: %w", err)
	}
	f, err := os.OpenFile(s.logPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("convo: open log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("convo: append turn: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("convo: fsync log: %w", err)
	}

	meta, err := s.LoadMetadata(sessionID)
	if err != nil {
		return err
	}
	meta.LastUpdated = turn.Timestamp
	meta.TurnCount++
	return s.SaveMetadata(meta)
}

// Load reads the full turn log in order. A truncated final line (a crash
// mid-append) is tolerated and dropped, per spec §4.E.
func (s *Store) Load(sessionID string) ([]TurnRecord, error) {
	f, err := os.Open(s.logPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("convo: open log: %w", err)
	}
	defer f.Close()

	var turns []TurnRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var t TurnRecord
		if err := json.Unmarshal(line, &t); err != nil {
			// Partial/corrupt last line: not yet committed, ignore.
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// SaveMetadata atomically (temp + rename) writes meta to its sidecar file.
func (s *Store) SaveMetadata(meta Metadata) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("convo: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("convo: marshal metadata: %w", err)
	}
	path := s.metaPath(meta.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("convo: write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("convo: rename metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads a session's metadata sidecar, or returns a fresh
// zero-turn record (created_at = now) if the session does not yet exist.
func (s *Store) LoadMetadata(sessionID string) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(sessionID))
	if os.IsNotExist(err) {
		return Metadata{SessionID: sessionID, CreatedAt: time.Now(), TurnCount: 0}, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("convo: read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("convo: unmarshal metadata: %w", err)
	}
	return meta, nil
}

// List returns every known session_id, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("convo: list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".meta.json") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".meta.json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a session's log and metadata.
func (s *Store) Delete(sessionID string) error {
	if err := os.Remove(s.logPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("convo: delete log: %w", err)
	}
	if err := os.Remove(s.metaPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("convo: delete metadata: %w", err)
	}
	s.locksMu.Lock()
	delete(s.locks, sessionID)
	s.locksMu.Unlock()
	return nil
}

// RetentionSweep deletes every session whose created_at is older than days
// days. days = 0 disables the sweep (returns nil, nil).
func (s *Store) RetentionSweep(days int) ([]string, error) {
	if days == 0 {
		return nil, nil
	}
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	var deleted []string
	for _, id := range ids {
		meta, err := s.LoadMetadata(id)
		if err != nil {
			continue
		}
		if meta.CreatedAt.Before(cutoff) {
			if err := s.Delete(id); err != nil {
				return deleted, err
			}
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}
