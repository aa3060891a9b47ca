// Package secretstore implements the hub's per-user encrypted Secret Store
// and user registry, grounded on hygroup/user/default/registry.py: bcrypt
// password hashing, a per-user PBKDF2-derived encryption key, and
// authenticated encryption of each secret value. The reference
// implementation used Fernet (Python's AES-128-CBC + HMAC construction);
// no Go library in the retrieval pack offers an equivalent authenticated
// cipher, so this adapts the idiom to stdlib AES-256-GCM, which is the
// ecosystem's standard AEAD choice.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"

	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/state"
)

const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
	keySize          = 32
)

// ErrUserAlreadyExists is raised by Register when the username is taken.
var ErrUserAlreadyExists = errors.New("user already exists")

// ErrNotAuthenticated is raised by any secret accessor for a user that has
// not (or no longer) authenticated in this process.
var ErrNotAuthenticated = errors.New("user is not authenticated")

// ErrSecretNotFound is raised by GetSecret / DeleteSecret for an unknown key.
var ErrSecretNotFound = errors.New("secret not found")

// userRecord is the persisted, on-disk shape for one user (spec §6:
// "Persisted user registry document").
type userRecord struct {
	Name             string            `json:"name"`
	PasswordHash     string            `json:"password_hash"`
	EncryptedSecrets map[string]string `json:"encrypted_secrets"`
	Salt             string            `json:"salt"`
	Mappings         map[string]string `json:"mappings"`
}

type document struct {
	Users []userRecord `json:"users"`
}

// sessionUser is the in-memory, decrypted state for a currently
// authenticated user. Plaintext secrets live only here — never on disk,
// and only for authenticated users (spec §4.6 invariant).
type sessionUser struct {
	secrets  map[string]string
	password string // retained only while authenticated, to re-encrypt on writes
}

// Store is the hub's Secret Store + user registry.
type Store struct {
	mu       sync.Mutex
	path     string
	records  map[string]userRecord
	sessions map[string]*sessionUser
}

// New loads (or initializes) a Store backed by dataDir/users.json.
func New(dataDir string) (*Store, error) {
	s := &Store{
		path:     filepath.Join(dataDir, "users.json"),
		records:  map[string]userRecord{},
		sessions: map[string]*sessionUser{},
	}

	if state.Exists(s.path) {
		var doc document
		if err := state.LoadJSON(s.path, &doc); err != nil {
			logger.WarnCF("secretstore", "failed to load user registry, starting empty", map[string]interface{}{"error": err.Error()})
		} else {
			for _, r := range doc.Users {
				s.records[r.Name] = r
			}
		}
	}

	return s, nil
}

// Register creates a new user with the given password and initial secrets.
func (s *Store) Register(username, password string, secrets map[string]string, mappings map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[username]; exists {
		return fmt.Errorf("%w: %q", ErrUserAlreadyExists, username)
	}

	rec, err := s.buildRecord(username, password, secrets, mappings)
	if err != nil {
		return err
	}
	s.records[username] = rec
	return s.persistLocked()
}

func (s *Store) buildRecord(username, password string, secrets, mappings map[string]string) (userRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return userRecord{}, fmt.Errorf("hashing password: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return userRecord{}, fmt.Errorf("generating salt: %w", err)
	}
	key := deriveKey(password, salt)

	encrypted := make(map[string]string, len(secrets))
	for name, value := range secrets {
		ct, err := encrypt(key, []byte(value))
		if err != nil {
			return userRecord{}, fmt.Errorf("encrypting secret %q: %w", name, err)
		}
		encrypted[name] = base64.StdEncoding.EncodeToString(append(append([]byte{}, salt...), ct...))
	}

	if mappings == nil {
		mappings = map[string]string{}
	}

	return userRecord{
		Name:             username,
		PasswordHash:     base64.StdEncoding.EncodeToString(hash),
		EncryptedSecrets: encrypted,
		Mappings:         mappings,
	}, nil
}

// Authenticate verifies password against the stored hash and, on success,
// decrypts all of the user's secrets into memory. A wrong password, or a
// decryption failure on any one secret, returns false with no partial
// in-memory state (spec §7 "Decryption").
func (s *Store) Authenticate(username, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(rec.PasswordHash)
	if err != nil {
		return false
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return false
	}

	decrypted := make(map[string]string, len(rec.EncryptedSecrets))
	for name, payload := range rec.EncryptedSecrets {
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil || len(raw) < saltSize {
			return false
		}
		salt, ct := raw[:saltSize], raw[saltSize:]
		key := deriveKey(password, salt)
		pt, err := decrypt(key, ct)
		if err != nil {
			return false
		}
		decrypted[name] = string(pt)
	}

	s.sessions[username] = &sessionUser{secrets: decrypted, password: password}
	return true
}

// Authenticated reports whether username is currently authenticated.
func (s *Store) Authenticated(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[username]
	return ok
}

// Deauthenticate drops username's in-memory plaintext secrets.
func (s *Store) Deauthenticate(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, username)
}

// GetSecrets returns a copy of all of username's decrypted secrets.
func (s *Store) GetSecrets(username string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	su, ok := s.sessions[username]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotAuthenticated, username)
	}
	out := make(map[string]string, len(su.secrets))
	for k, v := range su.secrets {
		out[k] = v
	}
	return out, nil
}

// GetSecret returns one decrypted secret for username.
func (s *Store) GetSecret(username, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	su, ok := s.sessions[username]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotAuthenticated, username)
	}
	v, ok := su.secrets[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
	}
	return v, nil
}

// SetSecret sets (or overwrites) a secret for an authenticated user,
// re-encrypting the full secret set with a freshly derived key and
// persisting it (spec §4.6).
func (s *Store) SetSecret(username, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateSecrets(username, func(secrets map[string]string) error {
		secrets[key] = value
		return nil
	})
}

// DeleteSecret removes a secret for an authenticated user.
func (s *Store) DeleteSecret(username, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateSecrets(username, func(secrets map[string]string) error {
		if _, ok := secrets[key]; !ok {
			return fmt.Errorf("%w: %q", ErrSecretNotFound, key)
		}
		delete(secrets, key)
		return nil
	})
}

func (s *Store) mutateSecrets(username string, mutate func(map[string]string) error) error {
	su, ok := s.sessions[username]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotAuthenticated, username)
	}
	if err := mutate(su.secrets); err != nil {
		return err
	}

	rec := s.records[username]
	newRec, err := s.buildRecord(username, su.password, su.secrets, rec.Mappings)
	if err != nil {
		return err
	}
	s.records[username] = newRec
	return s.persistLocked()
}

// GetMappings returns the inverted {gateway_username: system_username} map
// for every user that declared the given gateway (spec §4.6).
func (s *Store) GetMappings(gateway string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]string{}
	for name, rec := range s.records {
		if gw, ok := rec.Mappings[gateway]; ok {
			out[gw] = name
		}
	}
	return out
}

func (s *Store) persistLocked() error {
	doc := document{Users: make([]userRecord, 0, len(s.records))}
	for _, r := range s.records {
		doc.Users = append(doc.Users, r)
	}
	return state.SaveAtomic(s.path, doc)
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ct, nil)
}
