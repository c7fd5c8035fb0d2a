package diag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/user/chatbridge/internal/types"
)

// MaxLineBytes bounds the raw frame kept in a recorded entry.
const MaxLineBytes = 4096

// truncateLine cuts s to at most MaxLineBytes without splitting a UTF-8
// sequence.
func truncateLine(s string) string {
	if len(s) <= MaxLineBytes {
		return s
	}
	cut := MaxLineBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Recorder is a JSONL-backed append-only diagnostic log.
// Entries are stored per session in <root>/<sessionID>/diag.jsonl.
type Recorder struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

var _ Sink = (*Recorder)(nil)

// NewRecorder creates a Recorder rooted at the given directory.
func NewRecorder(root string) *Recorder {
	return &Recorder{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

func (r *Recorder) lock(sessionID types.SessionID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.locks[sessionID]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[sessionID] = l
	return l
}

func (r *Recorder) path(sessionID types.SessionID) string {
	return filepath.Join(r.root, string(sessionID), "diag.jsonl")
}

// count returns the number of recorded entries. Caller must hold the session lock.
func (r *Recorder) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(r.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open diag file: %w", err)
	}
	defer f.Close()

	var n int64
	buf := make([]byte, 32*1024)
	for {
		m, err := f.Read(buf)
		n += int64(bytes.Count(buf[:m], []byte{'\n'}))
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read diag file: %w", err)
		}
	}
}

// Record appends e to its session's log and assigns e.Seq.
func (r *Recorder) Record(_ context.Context, e *Entry) error {
	if e.SessionID == "" {
		return fmt.Errorf("record diagnostic: empty session id")
	}
	l := r.lock(e.SessionID)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path(e.SessionID)), 0o755); err != nil {
		return fmt.Errorf("create diag dir: %w", err)
	}

	existing, err := r.count(e.SessionID)
	if err != nil {
		return err
	}
	e.Seq = existing + 1
	e.Line = truncateLine(e.Line)
	if e.At.IsZero() {
		e.At = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal diagnostic: %w", err)
	}

	f, err := os.OpenFile(r.path(e.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open diag file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write diagnostic: %w", err)
	}
	return nil
}

// Report implements Sink. Write failures are logged and otherwise ignored.
func (r *Recorder) Report(e *Entry) {
	if err := r.Record(context.Background(), e); err != nil {
		slog.Error("record diagnostic failed", "session_id", e.SessionID, "error", err)
	}
}

// Tail returns the last limit entries for the session, oldest first.
func (r *Recorder) Tail(_ context.Context, sessionID types.SessionID, limit int) ([]*Entry, error) {
	l := r.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	f, err := os.Open(r.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open diag file: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	rd := bufio.NewReader(f)
	for {
		line, err := rd.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var e Entry
			if uerr := json.Unmarshal(line, &e); uerr != nil {
				return nil, fmt.Errorf("unmarshal diagnostic: %w", uerr)
			}
			entries = append(entries, &e)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read diag file: %w", err)
		}
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Sessions returns the IDs of sessions with recorded diagnostics, most
// recently written first.
func (r *Recorder) Sessions(_ context.Context) ([]types.SessionID, error) {
	dirs, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read diag root: %w", err)
	}

	type item struct {
		id  types.SessionID
		mod time.Time
	}
	var items []item
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(r.root, d.Name(), "diag.jsonl"))
		if err != nil {
			continue
		}
		items = append(items, item{id: types.SessionID(d.Name()), mod: info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mod.After(items[j].mod) })

	ids := make([]types.SessionID, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
