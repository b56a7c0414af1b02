package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	LogFormat string          `json:"log_format" yaml:"log_format"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	GeoIP     GeoIPConfig     `json:"geoip" yaml:"geoip"`
	Users     UsersConfig     `json:"users" yaml:"users"`
	Monitor   MonitorConfig   `json:"monitor" yaml:"monitor"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
}

type DetectionConfig struct {
	BruteForceThreshold int           `json:"brute_force_threshold" yaml:"brute_force_threshold"`
	BruteForceWindow    time.Duration `json:"brute_force_window" yaml:"brute_force_window"`
	AnalysisWindow      time.Duration `json:"analysis_window" yaml:"analysis_window"`
	StoreCapacity       int           `json:"store_capacity" yaml:"store_capacity"`
	EvictBatch          int           `json:"evict_batch" yaml:"evict_batch"`
	StandardPorts       []int         `json:"standard_ports" yaml:"standard_ports"`
	CommonUsernames     []string      `json:"common_usernames" yaml:"common_usernames"`
	NormalCountries     []string      `json:"normal_countries" yaml:"normal_countries"`
	Timezone            string        `json:"timezone" yaml:"timezone"`
}

type GeoIPConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Paths     []string `json:"paths" yaml:"paths"`
	CacheSize int      `json:"cache_size" yaml:"cache_size"`
}

type UsersConfig struct {
	PasswdPath string `json:"passwd_path" yaml:"passwd_path"`
}

type MonitorConfig struct {
	Interval             time.Duration `json:"interval" yaml:"interval"`
	HousekeepingInterval time.Duration `json:"housekeeping_interval" yaml:"housekeeping_interval"`
	Retention            time.Duration `json:"retention" yaml:"retention"`
	AlertCooldown        time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
}

type IngestConfig struct {
	ChannelBuffer int            `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration  `json:"dedupe_window" yaml:"dedupe_window"`
	FileTail      FileTailConfig `json:"file_tail" yaml:"file_tail"`
	Syslog        SyslogConfig   `json:"syslog" yaml:"syslog"`
	Journal       JournalConfig  `json:"journal" yaml:"journal"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
	REST          RESTConfig     `json:"rest" yaml:"rest"`
	Parser        ParserConfig   `json:"parser" yaml:"parser"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type SyslogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	UDPAddr string `json:"udp_addr" yaml:"udp_addr"`
	TCPAddr string `json:"tcp_addr" yaml:"tcp_addr"`
}

type JournalConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Command string   `json:"command" yaml:"command"`
	Units   []string `json:"units" yaml:"units"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type ParserConfig struct {
	Timezone    string `json:"timezone" yaml:"timezone"`
	UseLogTime  bool   `json:"use_log_time" yaml:"use_log_time"`
	DefaultPort int    `json:"default_port" yaml:"default_port"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

var (
	defaultCommonUsernames = []string{
		"admin", "administrator", "root", "user", "guest", "test",
		"mysql", "postgres", "apache", "nginx", "www-data", "ftp",
		"backup", "git", "jenkins", "docker", "ubuntu", "centos",
		"debian", "fedora", "oracle", "system",
	}
	defaultNormalCountries = []string{"US", "GB", "DE", "FR", "CA", "AU", "JP", "NL"}
	defaultGeoIPPaths      = []string{
		"/usr/share/GeoIP/GeoLite2-Country.mmdb",
		"/var/lib/GeoIP/GeoLite2-Country.mmdb",
		"/usr/local/share/GeoIP/GeoLite2-Country.mmdb",
		"./GeoLite2-Country.mmdb",
	}
)

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Detection: DetectionConfig{
			BruteForceThreshold: 5,
			BruteForceWindow:    10 * time.Minute,
			AnalysisWindow:      time.Hour,
			StoreCapacity:       10000,
			EvictBatch:          1000,
			StandardPorts:       []int{22},
			CommonUsernames:     append([]string(nil), defaultCommonUsernames...),
			NormalCountries:     append([]string(nil), defaultNormalCountries...),
			Timezone:            "Local",
		},
		GeoIP: GeoIPConfig{
			Enabled:   true,
			Paths:     append([]string(nil), defaultGeoIPPaths...),
			CacheSize: 4096,
		},
		Users: UsersConfig{PasswdPath: "/etc/passwd"},
		Monitor: MonitorConfig{
			Interval:             5 * time.Second,
			HousekeepingInterval: time.Minute,
			Retention:            60 * time.Minute,
			AlertCooldown:        5 * time.Minute,
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			DedupeWindow:  time.Second,
			FileTail:      FileTailConfig{Enabled: true, StartAtEnd: true, Files: []string{"/var/log/auth.log"}},
			Syslog:        SyslogConfig{Enabled: false, UDPAddr: ":5514", TCPAddr: ":5514"},
			Journal:       JournalConfig{Enabled: false, Command: "journalctl", Units: []string{"ssh", "sshd"}},
			Kafka:         KafkaConfig{Enabled: false},
			REST:          RESTConfig{Enabled: false, Addr: ":8090"},
			Parser:        ParserConfig{Timezone: "Local", DefaultPort: 22},
		},
		API:     APIConfig{Enabled: true, Addr: "127.0.0.1:8091"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:sshguard.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

// applyDefaults replaces missing or malformed detection values with the built-in
// defaults instead of rejecting the file.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	d := &cfg.Detection
	if d.BruteForceThreshold <= 0 {
		d.BruteForceThreshold = def.Detection.BruteForceThreshold
	}
	if d.BruteForceWindow <= 0 {
		d.BruteForceWindow = def.Detection.BruteForceWindow
	}
	if d.AnalysisWindow <= 0 {
		d.AnalysisWindow = def.Detection.AnalysisWindow
	}
	if d.StoreCapacity <= 0 {
		d.StoreCapacity = def.Detection.StoreCapacity
	}
	if d.EvictBatch <= 0 || d.EvictBatch > d.StoreCapacity {
		d.EvictBatch = d.StoreCapacity / 10
		if d.EvictBatch == 0 {
			d.EvictBatch = 1
		}
	}
	d.StandardPorts = validPorts(d.StandardPorts)
	if len(d.StandardPorts) == 0 {
		d.StandardPorts = def.Detection.StandardPorts
	}
	if len(d.CommonUsernames) == 0 {
		d.CommonUsernames = def.Detection.CommonUsernames
	}
	if len(d.NormalCountries) == 0 {
		d.NormalCountries = def.Detection.NormalCountries
	}
	if d.Timezone == "" {
		d.Timezone = def.Detection.Timezone
	}
	if len(cfg.GeoIP.Paths) == 0 {
		cfg.GeoIP.Paths = def.GeoIP.Paths
	}
	if cfg.GeoIP.CacheSize <= 0 {
		cfg.GeoIP.CacheSize = def.GeoIP.CacheSize
	}
	if cfg.Users.PasswdPath == "" {
		cfg.Users.PasswdPath = def.Users.PasswdPath
	}
	if cfg.Monitor.Interval <= 0 {
		cfg.Monitor.Interval = def.Monitor.Interval
	}
	if cfg.Monitor.HousekeepingInterval <= 0 {
		cfg.Monitor.HousekeepingInterval = def.Monitor.HousekeepingInterval
	}
	if cfg.Monitor.Retention <= 0 {
		cfg.Monitor.Retention = def.Monitor.Retention
	}
	if cfg.Monitor.AlertCooldown < 0 {
		cfg.Monitor.AlertCooldown = 0
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = def.Ingest.Parser.Timezone
	}
	if cfg.Ingest.Parser.DefaultPort <= 0 || cfg.Ingest.Parser.DefaultPort > 65535 {
		cfg.Ingest.Parser.DefaultPort = def.Ingest.Parser.DefaultPort
	}
	if cfg.Ingest.Journal.Command == "" {
		cfg.Ingest.Journal.Command = def.Ingest.Journal.Command
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = def.Alerts.StoreLimit
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
}

func validPorts(ports []int) []int {
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p > 0 && p <= 65535 {
			out = append(out, p)
		}
	}
	return out
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Syslog.Enabled && cfg.Ingest.Syslog.UDPAddr == "" && cfg.Ingest.Syslog.TCPAddr == "" {
		return errors.New("ingest.syslog.udp_addr or tcp_addr required when ingest.syslog.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
		}
	}
	return nil
}

// Location resolves a timezone name; unknown names fall back to local time.
func Location(name string) *time.Location {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.Local
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config that is never reloaded.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
