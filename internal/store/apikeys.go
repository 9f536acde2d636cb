package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

const (
	apiKeyPrefix = "tf_live_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// APIKey is a stored API key. The plaintext secret is never persisted.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// GenerateAPIKey creates a key for userID and returns the plaintext (shown
// once) with the stored record.
func (s *Store) GenerateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (string, *APIKey, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return "", nil, err
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}
	plaintext := apiKeyPrefix + string(secret)

	ak := &APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		KeyPrefix: string(secret[:8]),
		Name:      name,
		ExpiresAt: expiresAt,
		CreatedAt: now(),
	}
	var expiry any
	if expiresAt != nil {
		expiry = expiresAt.UTC()
	}
	_, err := s.conn.ExecContext(ctx, s.q(
		`INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		ak.ID, ak.UserID, hashKey(plaintext), ak.KeyPrefix, ak.Name, expiry, ak.CreatedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}
	return plaintext, ak, nil
}

// VerifyAPIKey resolves a plaintext key to its record and owner. Unknown and
// expired keys return nil, nil, nil.
func (s *Store) VerifyAPIKey(ctx context.Context, plaintext string) (*APIKey, *models.User, error) {
	keyHash := hashKey(plaintext)

	ak := &APIKey{}
	var expires, lastUsed sql.NullTime
	err := s.conn.QueryRowContext(ctx, s.q(
		`SELECT id, user_id, key_prefix, name, expires_at, last_used_at, created_at FROM api_keys WHERE key_hash = ?`),
		keyHash).Scan(&ak.ID, &ak.UserID, &ak.KeyPrefix, &ak.Name, &expires, &lastUsed, &ak.CreatedAt)
	if isNoRows(err) {
		slog.Debug("api key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify api key: %w", err)
	}
	ak.ExpiresAt = timePtr(expires)
	ak.LastUsedAt = timePtr(lastUsed)

	if ak.ExpiresAt != nil && ak.ExpiresAt.Before(now()) {
		slog.Debug("api key expired", "key_id", ak.ID, "expires_at", ak.ExpiresAt)
		return nil, nil, nil
	}

	u, err := s.GetUser(ctx, ak.UserID)
	if errs.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	used := now()
	if _, err := s.conn.ExecContext(ctx, s.q(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`), used, ak.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", ak.ID, "err", err)
	}
	ak.LastUsedAt = &used
	return ak, u, nil
}

// RevokeAPIKey deletes a key owned by userID.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID, userID string) error {
	res, err := s.conn.ExecContext(ctx, s.q(`DELETE FROM api_keys WHERE id = ? AND user_id = ?`), keyID, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("api key", keyID)
	}
	return nil
}

// ListAPIKeys returns a user's keys without secrets.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(
		`SELECT id, user_id, key_prefix, name, expires_at, last_used_at, created_at FROM api_keys WHERE user_id = ? ORDER BY created_at`),
		userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		ak := &APIKey{}
		var expires, lastUsed sql.NullTime
		if err := rows.Scan(&ak.ID, &ak.UserID, &ak.KeyPrefix, &ak.Name, &expires, &lastUsed, &ak.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		ak.ExpiresAt = timePtr(expires)
		ak.LastUsedAt = timePtr(lastUsed)
		keys = append(keys, ak)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: iterate: %w", err)
	}
	return keys, nil
}
