// Package catalog loads the wearable-provider definition: endpoints,
// OAuth scopes, rate-limit budgets, and the data types we sync with
// their staleness thresholds. Values come from an optional YAML file
// with sane defaults for everything omitted.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMinuteLimit    = 150
	defaultDayLimit       = 5000
	defaultPacing         = 600 * time.Millisecond
	defaultRequestTimeout = 30 * time.Second
	defaultCacheTTL       = 5 * time.Minute
	defaultPruneKeep      = 500
	defaultMaxRetries     = 3

	// High-frequency metrics go stale after an hour, everything else
	// after two.
	highFrequencyThreshold = time.Hour
	defaultThreshold       = 2 * time.Hour
)

var dataTypeRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

type fileConfig struct {
	Provider providerConfig `yaml:"provider"`
}

type providerConfig struct {
	AuthURL        string           `yaml:"auth_url"`
	TokenURL       string           `yaml:"token_url"`
	APIBaseURL     string           `yaml:"api_base_url"`
	ProfilePath    string           `yaml:"profile_path"`
	Scopes         []string         `yaml:"scopes"`
	MinuteLimit    int              `yaml:"minute_limit"`
	DayLimit       int              `yaml:"day_limit"`
	Pacing         string           `yaml:"pacing"`
	RequestTimeout string           `yaml:"request_timeout"`
	CacheTTL       string           `yaml:"cache_ttl"`
	PruneKeep      int              `yaml:"prune_keep"`
	MaxRetries     int              `yaml:"max_retries"`
	DataTypes      []dataTypeConfig `yaml:"data_types"`
}

type dataTypeConfig struct {
	Name          string `yaml:"name"`
	Path          string `yaml:"path"`
	HighFrequency bool   `yaml:"high_frequency"`
	Threshold     string `yaml:"threshold"`
}

// DataType describes one syncable metric stream.
type DataType struct {
	Name          string
	Path          string
	HighFrequency bool
	Threshold     time.Duration
}

// Catalog is the resolved provider definition.
type Catalog struct {
	AuthURL        string
	TokenURL       string
	APIBaseURL     string
	ProfilePath    string
	Scopes         []string
	MinuteLimit    int
	DayLimit       int
	Pacing         time.Duration
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	PruneKeep      int
	MaxRetries     int

	dataTypes map[string]DataType
	order     []string
}

// Load reads the catalog file when path is non-empty, otherwise returns
// the built-in defaults.
func Load(path string) (*Catalog, error) {
	pc := providerConfig{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		pc = fc.Provider
	}
	return resolve(pc)
}

func resolve(pc providerConfig) (*Catalog, error) {
	c := &Catalog{
		AuthURL:        firstNonEmpty(pc.AuthURL, "https://provider.example.com/oauth2/authorize"),
		TokenURL:       firstNonEmpty(pc.TokenURL, "https://api.provider.example.com/oauth2/token"),
		APIBaseURL:     firstNonEmpty(pc.APIBaseURL, "https://api.provider.example.com/1"),
		ProfilePath:    firstNonEmpty(pc.ProfilePath, "/user/profile.json"),
		Scopes:         pc.Scopes,
		MinuteLimit:    pc.MinuteLimit,
		DayLimit:       pc.DayLimit,
		PruneKeep:      pc.PruneKeep,
		MaxRetries:     pc.MaxRetries,
		dataTypes:      map[string]DataType{},
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"activity", "heartrate", "sleep", "nutrition", "profile"}
	}
	if c.MinuteLimit <= 0 {
		c.MinuteLimit = defaultMinuteLimit
	}
	if c.DayLimit <= 0 {
		c.DayLimit = defaultDayLimit
	}
	if c.PruneKeep <= 0 {
		c.PruneKeep = defaultPruneKeep
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}

	var err error
	if c.Pacing, err = parseDurationOr(pc.Pacing, defaultPacing); err != nil {
		return nil, fmt.Errorf("catalog pacing: %w", err)
	}
	if c.RequestTimeout, err = parseDurationOr(pc.RequestTimeout, defaultRequestTimeout); err != nil {
		return nil, fmt.Errorf("catalog request_timeout: %w", err)
	}
	if c.CacheTTL, err = parseDurationOr(pc.CacheTTL, defaultCacheTTL); err != nil {
		return nil, fmt.Errorf("catalog cache_ttl: %w", err)
	}

	types := pc.DataTypes
	if len(types) == 0 {
		types = []dataTypeConfig{
			{Name: "heart_rate", Path: "/user/-/activities/heart/date/today/1d.json", HighFrequency: true},
			{Name: "activity", Path: "/user/-/activities/date/today.json", HighFrequency: true},
			{Name: "sleep", Path: "/user/-/sleep/date/today.json"},
			{Name: "body", Path: "/user/-/body/log/weight/date/today.json"},
			{Name: "nutrition", Path: "/user/-/foods/log/date/today.json"},
		}
	}
	for _, tc := range types {
		if !dataTypeRegexp.MatchString(tc.Name) {
			return nil, fmt.Errorf("catalog data type %q: invalid name", tc.Name)
		}
		if _, dup := c.dataTypes[tc.Name]; dup {
			return nil, fmt.Errorf("catalog data type %q: duplicate", tc.Name)
		}
		dt := DataType{
			Name:          tc.Name,
			Path:          tc.Path,
			HighFrequency: tc.HighFrequency,
		}
		def := defaultThreshold
		if tc.HighFrequency {
			def = highFrequencyThreshold
		}
		if dt.Threshold, err = parseDurationOr(tc.Threshold, def); err != nil {
			return nil, fmt.Errorf("catalog data type %q threshold: %w", tc.Name, err)
		}
		c.dataTypes[tc.Name] = dt
		c.order = append(c.order, tc.Name)
	}

	return c, nil
}

// DataType looks up a configured metric stream by name.
func (c *Catalog) DataType(name string) (DataType, bool) {
	dt, ok := c.dataTypes[name]
	return dt, ok
}

// Threshold returns the staleness threshold for a data type, falling
// back to the conservative default for unknown names.
func (c *Catalog) Threshold(name string) time.Duration {
	if dt, ok := c.dataTypes[name]; ok {
		return dt.Threshold
	}
	return defaultThreshold
}

// DataTypes returns the configured streams in file order.
func (c *Catalog) DataTypes() []DataType {
	out := make([]DataType, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.dataTypes[name])
	}
	return out
}

func parseDurationOr(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", raw)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
