// Package config loads the server configuration file. The format is
// flat key=value lines with #-comments, parsed as a sectionless INI
// document.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	// UnixPath is the filesystem path of the listening socket.
	UnixPath string
	// MaxConnections caps concurrently connected clients.
	MaxConnections int
	// ThreadsInPool is the number of request workers.
	ThreadsInPool int
	// MaxMsgSize caps a text message payload in bytes.
	MaxMsgSize int
	// MaxFileSize caps an attachment in bytes.
	MaxFileSize int
	// MaxHistMsgs caps a user's offline message history.
	MaxHistMsgs int
	// DirName is the directory attachments are stored in.
	DirName string
	// StatFileName is the file statistics lines are appended to.
	StatFileName string

	// AdminAddr, when set, enables the HTTP admin listener.
	AdminAddr string
	// DBFile is the attachment metadata database path. Defaults to
	// attachments.db inside DirName.
	DBFile string
	// LogLevel selects the slog level (debug, info, warn, error).
	LogLevel string
}

// required lists the keys that must be present in the file. A missing
// key is a startup error, never a silent default.
var required = []string{
	"UnixPath",
	"MaxConnections",
	"ThreadsInPool",
	"MaxMsgSize",
	"MaxFileSize",
	"MaxHistMsgs",
	"DirName",
	"StatFileName",
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var missing []string
	for _, key := range required {
		if !v.IsSet("default." + key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config %s: missing required keys: %s",
			path, strings.Join(missing, ", "))
	}

	cfg := &Config{
		UnixPath:       v.GetString("default.UnixPath"),
		MaxConnections: v.GetInt("default.MaxConnections"),
		ThreadsInPool:  v.GetInt("default.ThreadsInPool"),
		MaxMsgSize:     v.GetInt("default.MaxMsgSize"),
		MaxFileSize:    v.GetInt("default.MaxFileSize"),
		MaxHistMsgs:    v.GetInt("default.MaxHistMsgs"),
		DirName:        v.GetString("default.DirName"),
		StatFileName:   v.GetString("default.StatFileName"),
		AdminAddr:      v.GetString("default.AdminAddr"),
		DBFile:         v.GetString("default.DBFile"),
		LogLevel:       v.GetString("default.LogLevel"),
	}
	if cfg.DBFile == "" {
		cfg.DBFile = filepath.Join(cfg.DirName, "attachments.db")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch {
	case c.UnixPath == "":
		return fmt.Errorf("UnixPath must not be empty")
	case c.MaxConnections < 1:
		return fmt.Errorf("MaxConnections must be positive, got %d", c.MaxConnections)
	case c.ThreadsInPool < 1:
		return fmt.Errorf("ThreadsInPool must be positive, got %d", c.ThreadsInPool)
	case c.MaxMsgSize < 1:
		return fmt.Errorf("MaxMsgSize must be positive, got %d", c.MaxMsgSize)
	case c.MaxFileSize < 1:
		return fmt.Errorf("MaxFileSize must be positive, got %d", c.MaxFileSize)
	case c.MaxHistMsgs < 1:
		return fmt.Errorf("MaxHistMsgs must be positive, got %d", c.MaxHistMsgs)
	case c.DirName == "":
		return fmt.Errorf("DirName must not be empty")
	case c.StatFileName == "":
		return fmt.Errorf("StatFileName must not be empty")
	}
	return nil
}
