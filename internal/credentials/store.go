package credentials

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/scrypt"
)

var (
	ErrNotFound = errors.New("credentials: not stored yet")
	ErrNoKeys   = errors.New("credentials: CRED_HASH_KEY/CRED_BLOCK_KEY or CRED_PASSPHRASE required")
)

const sealName = "resysnipe_credentials"

// Credentials is what `resysnipe load` captures from a browser session.
type Credentials struct {
	APIKey          string    `json:"api_key"`
	AuthToken       string    `json:"auth_token"`
	PaymentMethodID int64     `json:"payment_method_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c Credentials) HasResy() bool {
	return c.APIKey != "" && c.AuthToken != ""
}

// Masked returns a copy safe to print.
func (c Credentials) Masked() Credentials {
	c.APIKey = Mask(c.APIKey)
	c.AuthToken = Mask(c.AuthToken)
	return c
}

// Mask keeps the last four characters of a secret.
func Mask(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Keys are securecookie keys: a 32 or 64 byte hash key and a 16, 24 or 32
// byte AES block key.
type Keys struct {
	Hash  []byte
	Block []byte
}

// envelope is the on-disk format.
type envelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt,omitempty"`
	Sealed  string `json:"sealed"`
}

// Store keeps credentials sealed in a single file.
type Store struct {
	path       string
	keys       Keys
	passphrase []byte
}

func NewStore(path string, keys Keys) *Store {
	return &Store{path: path, keys: keys}
}

// NewPassphraseStore derives the keys from passphrase with scrypt, salted
// per file.
func NewPassphraseStore(path, passphrase string) *Store {
	return &Store{path: path, passphrase: []byte(passphrase)}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load() (Credentials, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Credentials{}, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}
	sc, err := s.codec(env.Salt)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := sc.Decode(sealName, env.Sealed, &c); err != nil {
		return Credentials{}, fmt.Errorf("credentials: unseal %s: %w", s.path, err)
	}
	return c, nil
}

// Save seals c and replaces the file atomically.
func (s *Store) Save(c Credentials) error {
	var env envelope
	env.Version = 1
	if len(s.passphrase) > 0 {
		env.Salt = make([]byte, 16)
		if _, err := rand.Read(env.Salt); err != nil {
			return err
		}
	}
	sc, err := s.codec(env.Salt)
	if err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	if env.Sealed, err = sc.Encode(sealName, c); err != nil {
		return fmt.Errorf("credentials: seal: %w", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) codec(salt []byte) (*securecookie.SecureCookie, error) {
	keys := s.keys
	if len(s.passphrase) > 0 {
		if len(salt) == 0 {
			return nil, errors.New("credentials: file was not sealed with a passphrase")
		}
		var err error
		if keys, err = DeriveKeys(s.passphrase, salt); err != nil {
			return nil, err
		}
	}
	if len(keys.Hash) == 0 || len(keys.Block) == 0 {
		return nil, ErrNoKeys
	}
	sc := securecookie.New(keys.Hash, keys.Block)
	sc.SetSerializer(securecookie.JSONEncoder{})
	// sealed files do not expire
	sc.MaxAge(0)
	return sc, nil
}

// DeriveKeys stretches a passphrase into a hash and block key.
func DeriveKeys(passphrase, salt []byte) (Keys, error) {
	k, err := scrypt.Key(passphrase, salt, 1<<15, 8, 1, 64)
	if err != nil {
		return Keys{}, fmt.Errorf("credentials: derive keys: %w", err)
	}
	return Keys{Hash: k[:32], Block: k[32:]}, nil
}

// GenerateKeys returns fresh random keys for `resysnipe keys`.
func GenerateKeys() (Keys, error) {
	k := Keys{
		Hash:  securecookie.GenerateRandomKey(32),
		Block: securecookie.GenerateRandomKey(32),
	}
	if k.Hash == nil || k.Block == nil {
		return Keys{}, errors.New("credentials: not enough randomness for keys")
	}
	return k, nil
}
