package roomclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// transcriptCache is the on-disk shape of a saved room transcript.
type transcriptCache struct {
	Room     string    `json:"room"`
	SavedAt  int64     `json:"savedAt"`
	Messages []Message `json:"messages"`
}

// loadCache reads a cached transcript for room from path. A missing file
// yields an empty transcript; a corrupt one or a transcript for a
// different room yields an error so the caller can discard it.
func loadCache(path, room string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript cache: %w", err)
	}

	var cache transcriptCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("corrupt transcript cache: %w", err)
	}
	if cache.Room != room {
		return nil, fmt.Errorf("transcript cache is for room %q, not %q", cache.Room, room)
	}

	return cache.Messages, nil
}

// saveCache writes the transcript atomically via a temp file rename so a
// crash mid-write never leaves a truncated cache.
func saveCache(path, room string, msgs []Message) error {
	cache := transcriptCache{
		Room:     room,
		SavedAt:  time.Now().UnixMilli(),
		Messages: msgs,
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript cache: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write transcript cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close transcript cache: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace transcript cache: %w", err)
	}
	return nil
}
