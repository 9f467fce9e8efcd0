package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// document is the per-channel task file layout. It must round-trip exactly
// through schedule/update/remove/list.
type document struct {
	Tasks []Task `json:"tasks"`
}

const taskFileName = "tasks.json"

// Store persists tasks as one JSON document per channel, under the channel's
// workspace directory.
type Store struct {
	root    string
	resolve func(channelID string) string
}

// NewStore creates a store rooted at root. resolver maps a channel id to its
// workspace directory; nil uses a flat per-channel layout under root.
func NewStore(root string, resolver func(channelID string) string) *Store {
	s := &Store{root: root, resolve: resolver}
	if s.resolve == nil {
		s.resolve = func(channelID string) string {
			return filepath.Join(root, channelDirName(channelID))
		}
	}
	return s
}

// channelDirName replaces unsafe characters for use as a directory name.
func channelDirName(channelID string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return r.Replace(channelID)
}

func (s *Store) path(channelID string) string {
	return filepath.Join(s.resolve(channelID), taskFileName)
}

// Upsert inserts or replaces a task in its channel document.
func (s *Store) Upsert(task Task) error {
	tasks, err := s.loadChannel(task.ChannelID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced {
		tasks = append(tasks, task)
	}
	return s.saveChannel(task.ChannelID, tasks)
}

// Delete removes a task from its channel document. Deleting an absent id is
// a no-op.
func (s *Store) Delete(channelID, taskID string) error {
	tasks, err := s.loadChannel(channelID)
	if err != nil {
		return err
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	return s.saveChannel(channelID, kept)
}

// LoadChannel returns the tasks persisted for one channel.
func (s *Store) LoadChannel(channelID string) ([]Task, error) {
	return s.loadChannel(channelID)
}

// LoadAll reads every channel document under the store root. Unreadable
// documents are skipped with a warning so one corrupt channel cannot keep the
// rest of the schedule from being rebuilt.
func (s *Store) LoadAll() ([]Task, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task store root: %w", err)
	}

	var all []Task
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.root, entry.Name(), taskFileName)
		tasks, err := readDocument(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable task document")
			continue
		}
		all = append(all, tasks...)
	}
	return all, nil
}

func (s *Store) loadChannel(channelID string) ([]Task, error) {
	tasks, err := readDocument(s.path(channelID))
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func readDocument(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task document: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse task document %s: %w", path, err)
	}
	return doc.Tasks, nil
}

func (s *Store) saveChannel(channelID string, tasks []Task) error {
	doc := document{Tasks: tasks}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task document: %w", err)
	}

	dir := s.resolve(channelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create channel workspace: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, taskFileName), data, 0o644)
}
