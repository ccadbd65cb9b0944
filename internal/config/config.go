// Package config loads the typed application settings from config file and
// environment via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds all runtime configuration for the service and the
// ingestion scripts.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		LogLevel string // debug, info, warn, error
		LogPath  string // directory for service log files
	}

	Mongo struct {
		URI      string        // mongodb connection string
		Database string        // database name
		Timeout  time.Duration // per-operation connection timeout
	}

	HTTP struct {
		Host string // listen address
		Port string // listen port
	}

	SerpAPI struct {
		APIKey       string        // serpapi.com API key
		BaseURL      string        // override for tests
		Language     string        // hl parameter for searches
		GoogleDomain string        // google_domain parameter
		Timeout      time.Duration // fixed per-request timeout
		CacheTTL     time.Duration // response cache TTL
		RequestLimit int           // global request budget per run
	}

	Ingest struct {
		CSVPath              string   // registry CSV export path
		RawDir               string   // directory of raw provider capture files
		Queries              []string // place search queries
		Cities               []string // cities appended to each query
		BatchRestaurants     int      // parents selected per refresh run
		ReviewsPerRestaurant int      // per-parent dependent target
		CooldownHours        int      // refresh cooldown window
		MaxPlacesTotal       int      // global item ceiling for a download sweep
		MaxPagesPerQuery     int      // pagination ceiling per query
	}
}

// Cooldown returns the refresh cooldown as a duration.
func (s *Settings) Cooldown() time.Duration {
	return time.Duration(s.Ingest.CooldownHours) * time.Hour
}

// Load reads the configuration file and environment variables into a
// Context. A missing config file is not an error; defaults and TATTLER_*
// environment variables still apply.
func Load() (*Context, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &Context{Settings: &settings}, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/tattler")
	viper.AddConfigPath("/etc/tattler")

	viper.SetEnvPrefix("tattler")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.logpath", "logs")

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "tattler")
	viper.SetDefault("mongo.timeout", 10*time.Second)

	viper.SetDefault("http.host", "0.0.0.0")
	viper.SetDefault("http.port", "3000")

	viper.SetDefault("serpapi.baseurl", "https://serpapi.com")
	viper.SetDefault("serpapi.language", "es")
	viper.SetDefault("serpapi.googledomain", "google.com.mx")
	viper.SetDefault("serpapi.timeout", 20*time.Second)
	viper.SetDefault("serpapi.cachettl", 15*time.Minute)
	viper.SetDefault("serpapi.requestlimit", 20)

	viper.SetDefault("ingest.csvpath", "data/registry.csv")
	viper.SetDefault("ingest.rawdir", "data/raw_google")
	viper.SetDefault("ingest.queries", []string{"restaurante OR comida OR antojitos OR taquería OR fonda"})
	viper.SetDefault("ingest.cities", []string{
		"Monterrey",
		"San Pedro Garza Garcia",
		"Apodaca",
		"Escobedo",
		"Guadalupe",
		"Santa Catarina",
	})
	viper.SetDefault("ingest.batchrestaurants", 10)
	viper.SetDefault("ingest.reviewsperrestaurant", 6)
	viper.SetDefault("ingest.cooldownhours", 24)
	viper.SetDefault("ingest.maxplacestotal", 200)
	viper.SetDefault("ingest.maxpagesperquery", 10)
}
