package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	bucketAccounts = []byte("accounts")
	bucketMeta     = []byte("meta")

	keySalt    = []byte("salt")
	keyCurrent = []byte("current")
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoCurrent       = errors.New("no current account")
)

type dbAccount struct {
	UUID         string `msgpack:"uuid"`
	Name         string `msgpack:"name"`
	AuthToken    []byte `msgpack:"authToken"`
	RefreshToken []byte `msgpack:"refreshToken"`
	Expiry       int64  `msgpack:"expiry"`
}

func (a *dbAccount) Key() []byte {
	return []byte(a.UUID)
}

func (a *dbAccount) MarshalBinary() (data []byte, err error) {
	type alias dbAccount
	return msgpack.Marshal((*alias)(a))
}

func (a *dbAccount) UnmarshalBinary(data []byte) error {
	type alias dbAccount
	return msgpack.Unmarshal(data, (*alias)(a))
}

// Store persists accounts in a local bbolt file. Auth and refresh
// tokens are sealed with a key derived from the configured secret and
// a per-file random salt, so copying the database alone leaks nothing.
type Store struct {
	db   *bbolt.DB
	aead cipher.AEAD
}

func NewStore(path, secret string) (*Store, error) {
	if secret == "" {
		return nil, errors.New("account store secret is required")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}

	var salt []byte
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAccounts); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if existing := meta.Get(keySalt); existing != nil {
			salt = append([]byte(nil), existing...)
			return nil
		}
		salt = make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		return meta.Put(keySalt, salt)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare account store: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), salt, []byte("palaver account tokens"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, aead: aead}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (s *Store) open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return "", errors.New("sealed token too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unseal token: %w", err)
	}
	return string(plaintext), nil
}

// Save stores new or updated account credentials.
func (s *Store) Save(account Account) error {
	authToken, err := s.seal(account.AuthToken)
	if err != nil {
		return err
	}
	var refreshToken []byte
	if account.RefreshToken != "" {
		if refreshToken, err = s.seal(account.RefreshToken); err != nil {
			return err
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		dbAcc := &dbAccount{
			UUID:         account.UUID,
			Name:         account.Name,
			AuthToken:    authToken,
			RefreshToken: refreshToken,
			Expiry:       account.Expiry.Unix(),
		}
		if account.Expiry.IsZero() {
			dbAcc.Expiry = 0
		}
		data, err := dbAcc.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbAcc.Key(), data)
	})
}

func (s *Store) decode(data []byte) (Account, error) {
	var dbAcc dbAccount
	if err := dbAcc.UnmarshalBinary(data); err != nil {
		return Account{}, err
	}
	authToken, err := s.open(dbAcc.AuthToken)
	if err != nil {
		return Account{}, err
	}
	refreshToken, err := s.open(dbAcc.RefreshToken)
	if err != nil {
		return Account{}, err
	}
	account := Account{
		UUID:         dbAcc.UUID,
		Name:         dbAcc.Name,
		AuthToken:    authToken,
		RefreshToken: refreshToken,
	}
	if dbAcc.Expiry != 0 {
		account.Expiry = time.Unix(dbAcc.Expiry, 0)
	}
	return account, nil
}

func (s *Store) Get(uuid string) (Account, error) {
	var account Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(uuid))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, uuid)
		}
		var err error
		account, err = s.decode(data)
		return err
	})
	return account, err
}

// List returns all stored accounts.
func (s *Store) List() ([]Account, error) {
	var accounts []Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			account, err := s.decode(v)
			if err != nil {
				return err
			}
			accounts = append(accounts, account)
			return nil
		})
	})
	return accounts, err
}

// Delete removes the account and clears the current mark if it
// pointed at it.
func (s *Store) Delete(uuid string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketAccounts).Delete([]byte(uuid)); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if string(meta.Get(keyCurrent)) == uuid {
			return meta.Delete(keyCurrent)
		}
		return nil
	})
}

// SetCurrent marks the account used on the next startup.
func (s *Store) SetCurrent(uuid string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketAccounts).Get([]byte(uuid)) == nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, uuid)
		}
		return tx.Bucket(bucketMeta).Put(keyCurrent, []byte(uuid))
	})
}

// Current returns the account marked by SetCurrent.
func (s *Store) Current() (Account, error) {
	var account Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		uuid := tx.Bucket(bucketMeta).Get(keyCurrent)
		if uuid == nil {
			return ErrNoCurrent
		}
		data := tx.Bucket(bucketAccounts).Get(uuid)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, uuid)
		}
		var err error
		account, err = s.decode(data)
		return err
	})
	return account, err
}
