package coordinator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hejianfang/xhs-crawl/pkg/walker"
)

// commentLine is the JSONL record shape spec.md §6 requires, at minimum:
// {comment_id, parent_id, note_id, _level, body, author, timestamp}.
type commentLine struct {
	CommentID string `json:"comment_id"`
	ParentID  string `json:"parent_id"`
	NoteID    string `json:"note_id"`
	Level     int    `json:"_level"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

// JSONLSink appends one line per comment to note_<id>_comments.jsonl,
// deduplicating by comment_id so the duplicates an interrupted page can
// produce on resume (spec.md §4.5.4) never reach disk twice.
type JSONLSink struct {
	mu   sync.Mutex
	f    *os.File
	seen map[string]bool
	n    int
}

// OpenJSONLSink opens (append mode, creating if absent) the sink file for
// one note, preloading the seen-ids set from whatever the file already
// contains so a resumed run's duplicate emits within the formerly
// interrupted page are still collapsed (spec.md §4.5.4).
func OpenJSONLSink(path string) (*JSONLSink, error) {
	seen := make(map[string]bool)
	n := 0
	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			var line commentLine
			if err := json.Unmarshal(scanner.Bytes(), &line); err == nil && line.CommentID != "" {
				if !seen[line.CommentID] {
					seen[line.CommentID] = true
					n++
				}
			}
		}
		existing.Close()
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening comment sink %s: %w", path, err)
	}
	return &JSONLSink{f: f, seen: seen, n: n}, nil
}

// Emit implements walker.Sink.
func (s *JSONLSink) Emit(c walker.EmittedComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[c.CommentID] {
		return nil
	}
	s.seen[c.CommentID] = true

	line := commentLine{
		CommentID: c.CommentID,
		ParentID:  c.ParentID,
		NoteID:    c.NoteID,
		Level:     c.Level,
		Body:      c.Body,
		Author:    c.Author.Nickname,
		Timestamp: c.Timestamp,
	}
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshaling comment line: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("writing comment line: %w", err)
	}
	s.n++
	return nil
}

// Count returns the number of distinct comments written so far.
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	return s.f.Close()
}
