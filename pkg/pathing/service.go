package pathing

import (
	"os"
	"path/filepath"
)

const (
	defaultDataDir   = "/var/lib/dlms_power_meter"
	defaultConfigDir = "/etc/dlms_power_meter"
)

// EnsureDirs creates the config and data directories. Call it once on
// startup before anything is read or written.
func EnsureDirs() error {
	for _, dir := range []string{GetConfigDir(), GetDataDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetMeterDbPath() string {
	return filepath.Join(GetDataDir(), "dlms-meter.db")
}

// GetDataDir can be moved with DLMS_DATA_DIR.
func GetDataDir() string {
	if dir := os.Getenv("DLMS_DATA_DIR"); dir != "" {
		return dir
	}
	return defaultDataDir
}

// GetConfigDir can be moved with DLMS_CONFIG_DIR.
func GetConfigDir() string {
	if dir := os.Getenv("DLMS_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigDir
}
