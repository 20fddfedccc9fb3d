package automation

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger abstracts structured logging for the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store reads the rule document from disk and caches the parsed form,
// reparsing only when the file's modification time advances. That keeps
// the evaluation loop off the disk while still picking up edits made by
// external collaborators.
type Store struct {
	path   string
	logger Logger

	mu       sync.Mutex
	rules    []Rule
	loadedAt time.Time
	loaded   bool
}

// NewStore creates a store for the rule document at path. The file is
// read lazily on first Rules call.
func NewStore(path string, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{path: path, logger: logger}
}

// Rules returns the current rule set, sorted by descending priority
// with document order breaking ties. The file is reparsed first when
// its mtime has advanced since the last load. The returned slice is a
// copy; callers may not see later reloads through it.
func (s *Store) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadIfChanged()

	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

func (s *Store) reloadIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		if !s.loaded {
			s.logger.Warn("rules file not found", "path", s.path)
			s.rules = nil
			s.loaded = true
		}
		return
	}

	if s.loaded && !info.ModTime().After(s.loadedAt) {
		return
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Error("failed to read rules file", "path", s.path, "error", err)
		return
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Error("failed to parse rules file, keeping previous rules",
			"path", s.path, "error", err)
		return
	}

	rules := doc.Rules
	for n := range rules {
		if rules[n].ID == "" {
			rules[n].ID = "rule-" + uuid.NewString()[:8]
		}
	}
	sort.SliceStable(rules, func(a, b int) bool {
		return rules[a].Priority > rules[b].Priority
	})

	s.rules = rules
	s.loadedAt = info.ModTime()
	s.loaded = true
	s.logger.Info("automation rules loaded", "path", s.path, "rules", len(rules))
}
