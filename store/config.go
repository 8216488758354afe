package store

import (
	"context"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
)

func (s *Store) GetConfigs(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []models.Config
	if err := s.conn(ctx).Where("`key` IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *Store) ListConfigs(ctx context.Context) ([]models.Config, error) {
	var rows []models.Config
	err := s.conn(ctx).Order("`key` ASC").Find(&rows).Error
	return rows, err
}

// SetConfig inserts the key or overwrites its value.
func (s *Store) SetConfig(ctx context.Context, key, value, description string) error {
	row := models.Config{Key: key, Value: value, Description: description}
	err := s.conn(ctx).Create(&row).Error
	if err == nil || !utils.IsDuplicateKeyErr(err) {
		return err
	}
	updates := map[string]interface{}{"value": value}
	if description != "" {
		updates["description"] = description
	}
	return s.conn(ctx).Model(&models.Config{}).Where("`key` = ?", key).Updates(updates).Error
}
