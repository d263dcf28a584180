// internal/cookiestore/store.go
package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	// DefaultService is the keyring service name cookie sets are stored under
	DefaultService = "planscrape"
	// DefaultDir is the fallback directory, relative to the home directory
	DefaultDir = ".planscrape/cookies"
)

// ErrNotFound is returned when no cookie set is stored for an authority
var ErrNotFound = errors.New("no stored cookies")

// Store persists the cookie sets replayed into scraper sessions. Some
// portals only serve search results after a disclaimer has been accepted;
// the resulting cookies are captured once and replayed on every run.
type Store interface {
	Load(authority string) ([]*http.Cookie, error)
	Save(authority string, cookies []*http.Cookie) error
	Delete(authority string) error
}

// Cookie is the stored form of an http.Cookie
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
}

// KeyringStore keeps cookie sets in the OS keyring
type KeyringStore struct {
	Service string
}

// FileStore keeps cookie sets as JSON files, for hosts without a keyring (CI, containers)
type FileStore struct {
	Dir string
}

// New picks the keyring when it is usable and a file store otherwise
func New(service string) (Store, error) {
	if service == "" {
		service = DefaultService
	}
	if os.Getenv("CI") == "" && keyringUsable(service) {
		return &KeyringStore{Service: service}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &FileStore{Dir: filepath.Join(home, DefaultDir)}, nil
}

func keyringUsable(service string) bool {
	const probe = "_probe_"
	if err := keyring.Set(service, probe, "1"); err != nil {
		return false
	}
	_ = keyring.Delete(service, probe)
	return true
}

func (k *KeyringStore) Load(authority string) ([]*http.Cookie, error) {
	data, err := keyring.Get(k.Service, authority)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load from keyring: %w", err)
	}
	return decode([]byte(data))
}

func (k *KeyringStore) Save(authority string, cookies []*http.Cookie) error {
	data, err := encode(cookies)
	if err != nil {
		return err
	}
	if err := keyring.Set(k.Service, authority, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Delete(authority string) error {
	err := keyring.Delete(k.Service, authority)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func (f *FileStore) path(authority string) string {
	return filepath.Join(f.Dir, unsafeName.ReplaceAllString(authority, "_")+".json")
}

func (f *FileStore) Load(authority string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(f.path(authority))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cookie file: %w", err)
	}
	return decode(data)
}

func (f *FileStore) Save(authority string, cookies []*http.Cookie) error {
	data, err := encode(cookies)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0700); err != nil {
		return err
	}
	if err := os.WriteFile(f.path(authority), data, 0600); err != nil {
		return fmt.Errorf("failed to save cookie file: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(authority string) error {
	err := os.Remove(f.path(authority))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cookie file: %w", err)
	}
	return nil
}

func encode(cookies []*http.Cookie) ([]byte, error) {
	stored := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		})
	}
	return json.Marshal(stored)
}

// decode drops cookies that have already expired
func decode(data []byte) ([]*http.Cookie, error) {
	var stored []Cookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to deserialize cookies: %w", err)
	}
	now := time.Now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}
