// Package config loads the server configuration from the command line and
// an optional ini style config file, and the auction houses to bootstrap
// from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "auctionhouse.conf"
	defaultLogFilename    = "auctionhouse.log"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogLevel       = "info"
	defaultListen         = ":8080"
	defaultMaxLogZips     = 16
	defaultTokenTTL       = 24 * time.Hour

	// StoreBadger and StorePostgres select the ledger backend.
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

// Config is the parsed server configuration.
type Config struct {
	AppDataDir string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store the embedded ledger"`
	LogDir     string `long:"logdir" description:"Directory to log output."`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, optionally followed by SUBSYS=level pairs"`
	MaxLogZips int    `long:"maxlogzips" description:"The number of zipped log files created by the log rotator to be retained. Setting to 0 will keep all."`
	NoFileLog  bool   `long:"nofilelogging" description:"Log to stdout only"`

	Listen      string   `long:"listen" description:"HTTP listen address"`
	CORSOrigins []string `long:"corsorigin" description:"Allowed CORS origin (repeatable, default *)"`

	Store  string `long:"store" choice:"badger" choice:"postgres" description:"Ledger backend"`
	PGConn string `long:"pgconn" description:"PostgreSQL connection string, required for the postgres store and for operator accounts"`

	JWTSecret string        `long:"jwtsecret" env:"AUCTIONHOUSE_JWT_SECRET" description:"HMAC secret for session tokens"`
	TokenTTL  time.Duration `long:"tokenttl" description:"Session token lifetime"`

	HouseFile string `long:"housefile" description:"YAML file of auction houses to create at startup"`
}

// LogFile is the path of the rotated log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

func defaultAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".auctionhouse")
}

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, path[1:])
}

// Load parses args over the config file and defaults. A missing config file
// is only an error when it was named explicitly.
func Load(args []string) (*Config, error) {
	cfg := Config{
		AppDataDir: defaultAppDataDir(),
		DebugLevel: defaultLogLevel,
		MaxLogZips: defaultMaxLogZips,
		Listen:     defaultListen,
		Store:      StoreBadger,
		TokenTTL:   defaultTokenTTL,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or appdata directory was specified.
	var preCfg Config
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}
	if preCfg.AppDataDir != "" {
		abs, err := filepath.Abs(cleanAndExpandPath(preCfg.AppDataDir))
		if err != nil {
			return nil, fmt.Errorf("unable to determine working directory: %w", err)
		}
		cfg.AppDataDir = abs
	}
	isDefaultConfigFile := preCfg.ConfigFile == ""
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	if isDefaultConfigFile {
		configFile = filepath.Join(cfg.AppDataDir, defaultConfigFilename)
	} else if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(cfg.AppDataDir, configFile)
	}

	parser := flags.NewParser(&cfg, flags.HelpFlag)
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if !isDefaultConfigFile {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
	} else if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	cfg.ConfigFile = configFile

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.AppDataDir, defaultDataDirname)
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, defaultLogDirname)
	}
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.HouseFile = cleanAndExpandPath(cfg.HouseFile)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("a session token secret is required (--jwtsecret or AUCTIONHOUSE_JWT_SECRET)")
	}
	if cfg.Store == StorePostgres && cfg.PGConn == "" {
		return nil, fmt.Errorf("--pgconn is required for the %s store", StorePostgres)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("invalid token lifetime %v", cfg.TokenTTL)
	}
	if _, _, err := ParseDebugLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseDebugLevels parses a level spec such as "info" or
// "info,API=debug,SETL=trace" into the default level and the per subsystem
// overrides.
func ParseDebugLevels(spec string) (slog.Level, map[string]slog.Level, error) {
	def := slog.LevelInfo
	levels := make(map[string]slog.Level)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "=") {
			lvl, ok := slog.LevelFromString(part)
			if !ok {
				return 0, nil, fmt.Errorf("invalid debug level %q", part)
			}
			def = lvl
			continue
		}
		fields := strings.SplitN(part, "=", 2)
		subsys := strings.ToUpper(strings.TrimSpace(fields[0]))
		lvl, ok := slog.LevelFromString(strings.TrimSpace(fields[1]))
		if subsys == "" || !ok {
			return 0, nil, fmt.Errorf("invalid subsystem debug level %q", part)
		}
		levels[subsys] = lvl
	}
	return def, levels, nil
}
