package google

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/oauth2"
)

// Credential is the persisted authorization artifact.
type Credential struct {
	Token  *oauth2.Token `json:"token"`
	Scopes []string      `json:"scopes"`
}

// Covers reports whether every scope in required was granted.
func (c *Credential) Covers(required []string) bool {
	for _, s := range required {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// CredentialStore loads and saves the credential between runs.
type CredentialStore interface {
	Load() (*Credential, error)
	Save(*Credential) error
}

// FileStore keeps the credential in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string { return s.path }

// Load retrieves the credential from the file.
func (s *FileStore) Load() (*Credential, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cred := &Credential{}
	if err := json.NewDecoder(f).Decode(cred); err != nil {
		return nil, fmt.Errorf("unable to decode credential file: %w", err)
	}
	if cred.Token == nil {
		return nil, fmt.Errorf("credential file %s holds no token", s.path)
	}
	return cred, nil
}

// Save writes the credential through a temporary file and a rename, so the
// previous file survives an interrupted write.
func (s *FileStore) Save(cred *Credential) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to restrict credential file: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cred); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to encode credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("unable to replace credential file: %w", err)
	}
	return nil
}
