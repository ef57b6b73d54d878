// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "MCLog Companion"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/mclog/ (Windows) or ~/.config/mclog/ (other)
	DirName = "mclog"

	// MutexName is the Windows mutex name for single instance control.
	// "Local\" prefix scopes the mutex to the current user session.
	MutexName = "Local\\mclog-companion"

	// LockFileName is the lock file name for single instance control.
	LockFileName = "mclog.lock"

	// ConfigFileName is the configuration file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the SQLite database file name.
	DatabaseFileName = "mclog.sqlite"

	// EnvPrefix prefixes every environment variable the config loader reads.
	EnvPrefix = "MCLOG_"

	// EnvConfigFile names an explicit config file path.
	EnvConfigFile = EnvPrefix + "CONFIG"
)
