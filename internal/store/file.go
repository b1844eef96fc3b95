package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "notifyd/pkg/logx"
)

// fileStore persists properties without a database.
//
// Files:
//   - <prefix>.snapshot.json (full map, rewritten on compaction)
//   - <prefix>.journal.jsonl (append-only operations since the snapshot)
//
// The journal is compacted into the snapshot every compactEvery operations
// and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	props        map[string]string

	writes       int
	compactEvery int
}

type journalRecord struct {
	Op    string            `json:"op"` // set | del
	Key   string            `json:"key,omitempty"`
	Value string            `json:"value,omitempty"`
	Many  map[string]string `json:"many,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	props := map[string]string{}
	if err := loadSnapshot(snapPath, props); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot unreadable; starting from journal", logx.String("path", snapPath), logx.Err(err))
	}
	if n, err := replayJournal(journalPath, props); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay stopped", logx.String("path", journalPath), logx.Int("applied", n), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		props:        props,
		compactEvery: 500,
	}, nil
}

func (s *fileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", false, ErrClosed
	}
	v, ok := s.props[key]
	return v, ok, nil
}

func (s *fileStore) Set(key, value string) error {
	return s.apply(journalRecord{Op: "set", Key: key, Value: value})
}

func (s *fileStore) SetMany(props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return s.apply(journalRecord{Op: "set", Many: cp})
}

func (s *fileStore) RemovePrefix(prefix string) error {
	return s.apply(journalRecord{Op: "del", Key: prefix})
}

func (s *fileStore) Keys(prefix string, exactLevel bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return sortedKeys(s.props, prefix, exactLevel), nil
}

func (s *fileStore) apply(r journalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	// Journal first; state only changes once the record is durable.
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	applyRecord(s.props, r)

	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("store compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.props); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func applyRecord(m map[string]string, r journalRecord) {
	switch r.Op {
	case "set":
		if r.Many != nil {
			for k, v := range r.Many {
				m[k] = v
			}
			return
		}
		if r.Key != "" {
			m[r.Key] = r.Value
		}
	case "del":
		removePrefixLocked(m, r.Key)
	}
}

func loadSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

// replayJournal applies records in order. A torn trailing line (crash during
// append) is skipped.
func replayJournal(path string, out map[string]string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		applyRecord(out, r)
		n++
	}
	return n, sc.Err()
}
