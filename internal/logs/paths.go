package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDir = "devbridge"

// GetLogDir returns the standard log directory for the current OS
func GetLogDir() (string, error) {
	homeDir, homeErr := os.UserHomeDir()

	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appDir, "logs"), nil
		}
	case "darwin":
		if homeErr == nil {
			return filepath.Join(homeDir, "Library", "Logs", appDir), nil
		}
	case "linux":
		if os.Getuid() == 0 {
			return filepath.Join("/var/log", appDir), nil
		}
		stateDir := os.Getenv("XDG_STATE_HOME")
		if stateDir == "" && homeErr == nil {
			stateDir = filepath.Join(homeDir, ".local", "state")
		}
		if stateDir != "" {
			return filepath.Join(stateDir, appDir, "logs"), nil
		}
	}

	if homeErr != nil {
		return filepath.Join(os.TempDir(), appDir, "logs"), nil
	}
	return filepath.Join(homeDir, ".devbridge", "logs"), nil
}

// GetLogFilePathWithDir returns the path of filename inside logDir (or the
// standard directory when logDir is empty), creating the directory.
func GetLogFilePathWithDir(logDir, filename string) (string, error) {
	if logDir == "" {
		dir, err := GetLogDir()
		if err != nil {
			return "", err
		}
		logDir = dir
	}

	if strings.HasPrefix(logDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(homeDir, logDir[2:])
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(logDir, filename), nil
}
