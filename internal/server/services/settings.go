package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/models"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/repomanager"
)

// SettingView is a setting with its value decoded from JSON. Values that
// are not valid JSON are returned as the raw string.
type SettingView struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CommunityLinks map[string]any

type SettingsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewSettingsService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *SettingsService {
	return &SettingsService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "settings"),
		now:         time.Now,
	}
}

func settingNotFound(key string) error {
	return common.NewUserError(common.ErrSettingNotFound, fmt.Sprintf("Setting '%s' not found", key))
}

func toView(s *models.Setting) *SettingView {
	v := &SettingView{Key: s.Key, Description: s.Description, UpdatedAt: s.UpdatedAt}
	var decoded any
	if err := json.Unmarshal([]byte(s.Value), &decoded); err != nil {
		v.Value = s.Value
	} else {
		v.Value = decoded
	}
	return v
}

func (s *SettingsService) Get(ctx context.Context, key string) (*SettingView, error) {
	setting, err := s.repomanager.Settings(s.db).Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, settingNotFound(key)
		}
		return nil, err
	}
	return toView(setting), nil
}

func (s *SettingsService) List(ctx context.Context) ([]*SettingView, error) {
	all, err := s.repomanager.Settings(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*SettingView, 0, len(all))
	for _, st := range all {
		views = append(views, toView(st))
	}
	return views, nil
}

// Upsert stores value, which must already be serialized, and returns the
// confirmation message.
func (s *SettingsService) Upsert(ctx context.Context, key, value, description, updatedBy string) (string, error) {
	created, err := s.repomanager.Settings(s.db).Upsert(ctx, &models.Setting{
		Key:         key,
		Value:       value,
		Description: description,
		UpdatedAt:   s.now().UTC(),
		UpdatedBy:   updatedBy,
	})
	if err != nil {
		return "", err
	}

	s.log.Info(ctx, "setting saved", "key", key, "created", created, "by", updatedBy)
	if created {
		return fmt.Sprintf("Setting '%s' created successfully", key), nil
	}
	return fmt.Sprintf("Setting '%s' updated successfully", key), nil
}

func (s *SettingsService) Delete(ctx context.Context, key string) (string, error) {
	if err := s.repomanager.Settings(s.db).Delete(ctx, key); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", settingNotFound(key)
		}
		return "", err
	}
	s.log.Info(ctx, "setting deleted", "key", key)
	return fmt.Sprintf("Setting '%s' deleted successfully", key), nil
}

// PaymentSettings returns the decoded payment_<slug> setting, falling back
// to payment_default. A nil result means neither is usable.
func (s *SettingsService) PaymentSettings(ctx context.Context, eventSlug string) (any, error) {
	repo := s.repomanager.Settings(s.db)

	if eventSlug != "" {
		v, err := s.decoded(ctx, repo.Get, "payment_"+eventSlug)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return s.decoded(ctx, repo.Get, common.PaymentSettingsDefaultKey)
}

func (s *SettingsService) CommunityLinks(ctx context.Context) (any, error) {
	v, err := s.decoded(ctx, s.repomanager.Settings(s.db).Get, common.CommunityLinksKey)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return CommunityLinks{"whatsapp": nil, "discord": nil}, nil
	}
	return v, nil
}

// decoded loads key and parses its JSON value. Missing keys and
// unparsable values both yield nil.
func (s *SettingsService) decoded(ctx context.Context, get func(context.Context, string) (*models.Setting, error), key string) (any, error) {
	setting, err := get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(setting.Value), &v); err != nil {
		s.log.Warn(ctx, "setting is not valid JSON", "key", key)
		return nil, nil
	}
	return v, nil
}
