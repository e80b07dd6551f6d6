// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

const draftExt = ".json"

// FileStorage keeps project drafts as JSON files under BaseDir
type FileStorage struct {
	BaseDir string

	// path -> *sync.RWMutex
	fileLocks sync.Map
	logger    *utils.Logger
}

// NewFileStorage creates the draft directory if needed
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{
		BaseDir: baseDir,
		logger:  utils.GetLogger(),
	}, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (fs *FileStorage) draftPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", apperrors.NewValidationError(fmt.Sprintf("invalid draft id %q", id), nil)
	}
	return filepath.Join(fs.BaseDir, id+draftExt), nil
}

// writeAtomic writes through a temp file and a rename so readers never see a partial file
func (fs *FileStorage) writeAtomic(fullPath string, content []byte) error {
	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			fs.logger.Warn("temp file not cleaned up", map[string]interface{}{
				"path":  tempPath,
				"error": removeErr.Error(),
			})
		}
		return fmt.Errorf("replace %s: %w", filepath.Base(fullPath), err)
	}
	return nil
}

// SaveDraft stores a snapshot, replacing the previous one with the same id
func (fs *FileStorage) SaveDraft(draft *models.Draft) error {
	if draft == nil {
		return apperrors.NewValidationError("nothing to save", nil)
	}
	fullPath, err := fs.draftPath(draft.ID)
	if err != nil {
		return err
	}
	content, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := fs.writeAtomic(fullPath, content); err != nil {
		return err
	}
	fs.logger.Debug("draft saved", map[string]interface{}{
		"draft_id": draft.ID,
		"bytes":    len(content),
	})
	return nil
}

// LoadDraft reads a snapshot. A missing draft is a not-found error.
func (fs *FileStorage) LoadDraft(id string) (*models.Draft, error) {
	fullPath, err := fs.draftPath(id)
	if err != nil {
		return nil, err
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	content, err := os.ReadFile(fullPath)
	lock.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("no draft named %q", id), err)
		}
		return nil, fmt.Errorf("read draft: %w", err)
	}

	var draft models.Draft
	if err := json.Unmarshal(content, &draft); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &draft, nil
}

// DeleteDraft removes a snapshot. Deleting a missing draft is not an error.
func (fs *FileStorage) DeleteDraft(id string) error {
	fullPath, err := fs.draftPath(id)
	if err != nil {
		return err
	}
	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// ListDrafts returns the ids of stored drafts, sorted
func (fs *FileStorage) ListDrafts() ([]string, error) {
	entries, err := os.ReadDir(fs.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, draftExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, draftExt))
	}
	sort.Strings(ids)
	return ids, nil
}
