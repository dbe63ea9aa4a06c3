package event

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

	"github.com/klauspost/compress/zstd"
)

const journalPrefix = "events-"

// FileJournal writes events as zstd-compressed JSON Lines, one event per
// line, rotated daily by UTC date. The journal is the durable truth: the
// in-memory store is a cache rebuilt from it on startup.
type FileJournal struct {
	dir string

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewFileJournal(dir string) *FileJournal {
	return &FileJournal{dir: dir}
}

func (j *FileJournal) Write(ev *Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if day != j.curDay {
		if err := j.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event %d: %w", ev.Seq, err)
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := j.w.Flush(); err != nil {
		return err
	}
	// Flush the compressor too so a crash loses at most the current block.
	return j.enc.Flush()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *FileJournal) rotateLocked(day string) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(j.dir, fmt.Sprintf("%s%s.jsonl.zst", journalPrefix, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}

	j.f = f
	j.enc = enc
	j.w = bufio.NewWriterSize(enc, 64*1024)
	j.curDay = day
	return nil
}

func (j *FileJournal) closeLocked() error {
	var err error
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	j.curDay = ""
	return err
}

// ReadJournal loads every journaled event under dir in order and verifies
// the sequence is gap-free. A missing directory is an empty journal, not
// an error: first boot.
func ReadJournal(dir string) ([]*Event, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, journalPrefix) && strings.HasSuffix(name, ".jsonl.zst") {
			files = append(files, name)
		}
	}
	// Daily files sort chronologically by name.
	sort.Strings(files)

	var events []*Event
	for _, name := range files {
		evs, err := readJournalFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("journal file %s: %w", name, err)
		}
		events = append(events, evs...)
	}

	for i, ev := range events {
		if ev.Seq != uint64(i)+1 {
			return nil, fmt.Errorf("journal gap: event %d has seq %d", i, ev.Seq)
		}
	}
	return events, nil
}

func readJournalFile(path string) ([]*Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var events []*Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ev := &Event{}
		if err := json.Unmarshal([]byte(line), ev); err != nil {
			return nil, fmt.Errorf("decoding line: %w", err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
