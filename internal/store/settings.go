package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tunnel-keeper/internal/env"
	"tunnel-keeper/internal/models"
)

// SettingsFile 隧道配置文件名
const SettingsFile = "gcr_tunnel.json"

// SettingsPath 返回指定登录用户的隧道配置文件路径
func SettingsPath(login string) string {
	return filepath.Join(env.UserDataDir(), login, SettingsFile)
}

/**
 * JSONStore keeps the ordered tunnel settings of one user in a JSON array
 * @description
 * - The file holds [{"sandboxID": n, "port": n}, ...] in list order
 * - Writes go to a temporary file first and are renamed into place
 */
type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// NewUserStore 创建登录用户对应的配置存储
func NewUserStore(login string) *JSONStore {
	return NewJSONStore(SettingsPath(login))
}

func (s *JSONStore) Path() string {
	return s.path
}

/**
 * Load tunnel settings
 * @returns {([]models.TunnelSetting, error)} Settings in stored order, empty if the file does not exist
 */
func (s *JSONStore) Load() ([]models.TunnelSetting, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.TunnelSetting{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	settings := []models.TunnelSetting{}
	if len(data) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return settings, nil
}

/**
 * Save tunnel settings, replacing the whole file
 * @param {[]models.TunnelSetting} settings - Settings in list order
 * @returns {error} Returns error if the directory or file cannot be written
 */
func (s *JSONStore) Save(settings []models.TunnelSetting) error {
	if settings == nil {
		settings = []models.TunnelSetting{}
	}
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, SettingsFile+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
