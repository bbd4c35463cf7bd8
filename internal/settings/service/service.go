package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
)

type Service struct{ repo sdomain.Repository }

func New(repo sdomain.Repository) *Service { return &Service{repo: repo} }

var _ sdomain.Service = (*Service)(nil)

// lookup returns the trimmed stored value, or ok=false when the key is unset
// or blank. Storage errors are returned so callers can fall back explicitly.
func (s *Service) lookup(ctx context.Context, key string, clientID *uuid.UUID) (string, bool, error) {
	v, ok, err := s.repo.Get(ctx, key, clientID)
	if err != nil || !ok {
		return "", false, err
	}
	v = strings.TrimSpace(v)
	return v, v != "", nil
}

func (s *Service) GetString(ctx context.Context, key string, clientID *uuid.UUID, def string) (string, error) {
	v, ok, err := s.lookup(ctx, key, clientID)
	if !ok {
		return def, err
	}
	return v, nil
}

// GetDuration falls back to def for unparseable values.
func (s *Service) GetDuration(ctx context.Context, key string, clientID *uuid.UUID, def time.Duration) (time.Duration, error) {
	v, ok, err := s.lookup(ctx, key, clientID)
	if !ok {
		return def, err
	}
	d, perr := time.ParseDuration(v)
	if perr != nil {
		return def, nil
	}
	return d, nil
}

// GetInt falls back to def for unparseable values.
func (s *Service) GetInt(ctx context.Context, key string, clientID *uuid.UUID, def int) (int, error) {
	v, ok, err := s.lookup(ctx, key, clientID)
	if !ok {
		return def, err
	}
	n, perr := strconv.Atoi(v)
	if perr != nil {
		return def, nil
	}
	return n, nil
}

// Set validates and stores a setting, globally when clientID is nil.
func (s *Service) Set(ctx context.Context, key string, clientID *uuid.UUID, value string) error {
	if !slices.Contains(sdomain.Keys, key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	value = strings.TrimSpace(value)
	switch key {
	case sdomain.KeyEmailProvider:
		value = strings.ToLower(value)
		if value != "smtp" && value != "ses" {
			return fmt.Errorf("%s must be smtp or ses", key)
		}
	case sdomain.KeySMTPPort:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
	case sdomain.KeySendTimeout:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a duration", key)
		}
	}
	return s.repo.Upsert(ctx, key, clientID, value, sdomain.IsSecret(key))
}

// List returns stored settings with secret values masked.
func (s *Service) List(ctx context.Context, clientID *uuid.UUID) ([]sdomain.Setting, error) {
	rows, err := s.repo.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Secret || sdomain.IsSecret(rows[i].Key) {
			rows[i].Value = sdomain.Masked
		}
	}
	return rows, nil
}
