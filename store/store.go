package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"restock-monitor/internal/types"
)

// Setting keys. The monitoring flags are reset to false at every process
// start; monitoring never silently resumes across a restart.
const (
	KeyIsMonitoring    = "isMonitoring"
	KeyAutoCheckout    = "autoCheckout"
	KeyRefreshInterval = "refreshInterval"
)

// Setting is one persisted key-value pair.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Store is the persistent key-value and product storage. It is the source
// of truth: callers treat their in-memory copies as caches.
type Store struct {
	db     *gorm.DB
	logger types.Logger
}

// Open opens (creating if needed) the sqlite database and migrates the
// schema.
func Open(dsn string, log types.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&types.Product{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// MonitoredProducts returns the monitored-product list.
func (s *Store) MonitoredProducts() ([]types.Product, error) {
	var products []types.Product
	if err := s.db.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load monitored products: %w", err)
	}
	return products, nil
}

// FindProduct returns the monitored product with the given URL, or nil.
func (s *Store) FindProduct(url string) (*types.Product, error) {
	var product types.Product
	err := s.db.First(&product, "url = ?", url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up product: %w", err)
	}
	return &product, nil
}

// SaveProduct inserts or overwrites a monitored product, keyed by URL.
func (s *Store) SaveProduct(product types.Product) error {
	if product.URL == "" {
		return fmt.Errorf("product has no URL")
	}
	if err := s.db.Save(&product).Error; err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// RemoveProduct deletes the monitored product with the given URL. Removing
// an unknown URL is not an error.
func (s *Store) RemoveProduct(url string) error {
	if err := s.db.Delete(&types.Product{}, "url = ?", url).Error; err != nil {
		return fmt.Errorf("failed to remove product: %w", err)
	}
	return nil
}

// GetBool reads a boolean setting, defaulting to false when unset.
func (s *Store) GetBool(key string) (bool, error) {
	value, err := s.get(key)
	if err != nil || value == "" {
		return false, err
	}
	return value == "true", nil
}

// SetBool writes a boolean setting.
func (s *Store) SetBool(key string, value bool) error {
	return s.set(key, strconv.FormatBool(value))
}

// RefreshInterval reads the persisted poll interval preference in seconds;
// zero means nothing is configured.
func (s *Store) RefreshInterval() (int, error) {
	value, err := s.get(KeyRefreshInterval)
	if err != nil || value == "" {
		return 0, err
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt refresh interval %q: %w", value, err)
	}
	return seconds, nil
}

// SetRefreshInterval persists the poll interval preference.
func (s *Store) SetRefreshInterval(seconds int) error {
	return s.set(KeyRefreshInterval, strconv.Itoa(seconds))
}

func (s *Store) get(key string) (string, error) {
	var setting Setting
	err := s.db.First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return setting.Value, nil
}

func (s *Store) set(key, value string) error {
	if err := s.db.Save(&Setting{Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
