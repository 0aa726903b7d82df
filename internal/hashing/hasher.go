package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"admin-service/internal/config"
	"admin-service/internal/util"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value     string
	CreatedAt time.Time
	Version   int
}

// Hasher produces peppered argon2id password hashes for admin accounts.
// The pepper rotates in production; verification tries the current pepper
// first, then retained old versions.
type Hasher struct {
	params        Argon2Params
	currentPepper *Pepper
	oldPeppers    []*Pepper
	config        *config.Config
	mu            sync.RWMutex
}

func NewHasher(cfg *config.Config) *Hasher {
	params := Argon2Params{
		Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
		SaltLength:  32,
		KeyLength:   32,
	}

	h := &Hasher{
		params: params,
		config: cfg,
	}

	h.rotatePepper()

	return h
}

func (h *Hasher) rotatePepper() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentPepper != nil {
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
	}

	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		util.Fatal("Failed to generate pepper", zap.Error(err))
	}

	h.currentPepper = &Pepper{
		Value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		CreatedAt: time.Now(),
		Version:   len(h.oldPeppers) + 1,
	}

	util.Info("Pepper rotated",
		zap.Int("version", h.currentPepper.Version),
		zap.Time("created_at", h.currentPepper.CreatedAt),
	)
}

// StartPepperRotation starts background pepper rotation
func (h *Hasher) StartPepperRotation() {
	ticker := time.NewTicker(time.Duration(h.config.Hashing.PepperRotationDays) * 24 * time.Hour)

	go func() {
		for range ticker.C {
			h.rotatePepper()

			// Keep only the last 2 old versions
			h.mu.Lock()
			if len(h.oldPeppers) > 2 {
				h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-2:]
			}
			h.mu.Unlock()
		}
	}()
}

// HashPassword returns an encoded argon2id hash of the peppered password.
// Format: $argon2id$v=19$m=...,t=...,p=...$pv=<pepper version>$<salt>$<hash>
func (h *Hasher) HashPassword(password string) (string, error) {
	h.mu.RLock()
	pepper := h.currentPepper
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password+pepper.Value),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$pv=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		pepper.Version,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

// VerifyPassword checks a password against an encoded hash, trying the
// pepper version recorded in the hash.
func (h *Hasher) VerifyPassword(password, encodedHash string) (bool, error) {
	params, pepperVersion, salt, key, err := h.decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	pepper := h.pepperByVersion(pepperVersion)
	if pepper == nil {
		return false, ErrInvalidHash
	}

	otherKey := argon2.IDKey(
		[]byte(password+pepper.Value),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		params.KeyLength,
	)

	return subtle.ConstantTimeCompare(key, otherKey) == 1, nil
}

func (h *Hasher) pepperByVersion(version int) *Pepper {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.currentPepper != nil && h.currentPepper.Version == version {
		return h.currentPepper
	}
	for _, p := range h.oldPeppers {
		if p.Version == version {
			return p
		}
	}
	return nil
}

func (h *Hasher) decodeHash(encodedHash string) (*Argon2Params, int, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 7 {
		return nil, 0, nil, nil, ErrInvalidHash
	}
	if parts[1] != "argon2id" {
		return nil, 0, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, 0, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, 0, nil, nil, ErrIncompatibleVersion
	}

	params := &Argon2Params{KeyLength: h.params.KeyLength}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return nil, 0, nil, nil, ErrInvalidHash
	}

	var pepperVersion int
	if _, err := fmt.Sscanf(parts[4], "pv=%d", &pepperVersion); err != nil {
		return nil, 0, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, 0, nil, nil, ErrInvalidHash
	}
	params.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.DecodeString(parts[6])
	if err != nil {
		return nil, 0, nil, nil, ErrInvalidHash
	}
	params.KeyLength = uint32(len(key))

	return params, pepperVersion, salt, key, nil
}
