package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StoreSettings describes the shop printed on receipts.
type StoreSettings struct {
	Name             string `mapstructure:"name"`
	Address          string `mapstructure:"address"`
	Phone            string `mapstructure:"phone"`
	Currency         string `mapstructure:"currency"`
	CurrencyExponent int    `mapstructure:"currencyExponent"`
	ReceiptFooter    string `mapstructure:"receiptFooter"`
}

func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		Name:             "MartPOS",
		Currency:         "USD",
		CurrencyExponent: 2,
		ReceiptFooter:    "Thank you for shopping with us",
	}
}

type StoreSettingsHolder struct {
	current atomic.Value // holds StoreSettings
}

// NewStoreSettingsHolder reads store.yml from the usual config paths and
// keeps watching it. A missing file falls back to defaults.
func NewStoreSettingsHolder(log *zap.Logger) (*StoreSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("store")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/martpos/config")
	v.AddConfigPath("/etc/martpos")
	v.AddConfigPath(".")

	return newStoreSettingsHolder(v, log)
}

// NewStoreSettingsHolderFromFile loads settings from an explicit path.
func NewStoreSettingsHolderFromFile(path string, log *zap.Logger) (*StoreSettingsHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newStoreSettingsHolder(v, log)
}

func newStoreSettingsHolder(v *viper.Viper, log *zap.Logger) (*StoreSettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store-settings")

	v.SetEnvPrefix("MARTPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultStoreSettings()
	v.SetDefault("store.name", defaults.Name)
	v.SetDefault("store.currency", defaults.Currency)
	v.SetDefault("store.currencyExponent", defaults.CurrencyExponent)
	v.SetDefault("store.receiptFooter", defaults.ReceiptFooter)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeStoreSettings(v)
	if err != nil {
		return nil, err
	}

	holder := &StoreSettingsHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeStoreSettings(v)
			if err != nil {
				log.Warn("reload failed, keeping previous settings", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticStoreSettingsHolder wraps fixed settings, mostly for tests.
func NewStaticStoreSettingsHolder(settings StoreSettings) *StoreSettingsHolder {
	holder := &StoreSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func (h *StoreSettingsHolder) Get() StoreSettings {
	return h.current.Load().(StoreSettings)
}

func decodeStoreSettings(v *viper.Viper) (StoreSettings, error) {
	var cfg StoreSettings
	if err := v.UnmarshalKey("store", &cfg); err != nil {
		return StoreSettings{}, err
	}
	if err := validateStoreSettings(cfg); err != nil {
		return StoreSettings{}, err
	}
	return cfg, nil
}

func validateStoreSettings(cfg StoreSettings) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("store.name cannot be empty")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("store.currency cannot be empty")
	}
	if cfg.CurrencyExponent < 0 || cfg.CurrencyExponent > 4 {
		return errors.New("store.currencyExponent must be between 0 and 4")
	}
	return nil
}
