// Package prefs persists per-device client preferences in a YAML file.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"memchat/api/internal/client"
)

type values struct {
	LastWorkspace string `yaml:"last_workspace,omitempty"`
	LastChat      string `yaml:"last_chat,omitempty"`
	AccessToken   string `yaml:"access_token,omitempty"`
	RefreshToken  string `yaml:"refresh_token,omitempty"`
}

// File is safe for concurrent use. Every setter writes through to disk.
type File struct {
	path string

	mu     sync.Mutex
	values values
}

// DefaultPath is ~/.config/memchat/prefs.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "memchat", "prefs.yaml"), nil
}

// Open loads path; a missing file is an empty set of preferences.
func Open(path string) (*File, error) {
	f := &File{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	return f, nil
}

func (f *File) LastWorkspace() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.LastWorkspace
}

func (f *File) SetLastWorkspace(id string) error {
	return f.update(func(v *values) { v.LastWorkspace = id })
}

func (f *File) LastChat() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.LastChat
}

func (f *File) SetLastChat(id string) error {
	return f.update(func(v *values) { v.LastChat = id })
}

func (f *File) Tokens() client.Tokens {
	f.mu.Lock()
	defer f.mu.Unlock()
	return client.Tokens{Access: f.values.AccessToken, Refresh: f.values.RefreshToken}
}

func (f *File) SetTokens(t client.Tokens) error {
	return f.update(func(v *values) {
		v.AccessToken = t.Access
		v.RefreshToken = t.Refresh
	})
}

func (f *File) update(apply func(*values)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.values
	apply(&next)
	if err := f.writeLocked(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// writeLocked replaces the file via rename so readers never see a partial write.
func (f *File) writeLocked(v values) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
