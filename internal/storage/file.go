package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"blastbot/pkg/logx"
)

// fileStore keeps one JSON file per (user, kind):
//
//	<root>/<user_id>/<kind>.json
//
// Writes go through a temp file + rename so a crash mid-write never leaves a
// half-written document behind.
type fileStore struct {
	log  logx.Logger
	root string

	mu sync.Mutex
}

var kindPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, root: root}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) docPath(userID int64, kind string) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	if !kindPattern.MatchString(kind) {
		return "", errors.New("invalid document kind: " + kind)
	}
	return filepath.Join(s.root, strconv.FormatInt(userID, 10), kind+".json"), nil
}

func (s *fileStore) SaveDoc(ctx context.Context, userID int64, kind string, v any) error {
	_ = ctx
	path, err := s.docPath(userID, kind)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) LoadDoc(ctx context.Context, userID int64, kind string, v any) (bool, error) {
	_ = ctx
	path, err := s.docPath(userID, kind)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	b, err := os.ReadFile(path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Users(ctx context.Context) ([]int64, error) {
	_ = ctx
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil || id <= 0 {
			// unrelated directory, skip
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
