package audit

import (
	"os"
	"os/user"
	"runtime"
)

// sessionInfo describes the process writing audit entries. Every field is
// inserted only if the caller has not pre-seeded it.
func sessionInfo() map[string]interface{} {
	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	} else if env := os.Getenv("USER"); env != "" {
		username = env
	}

	hostname := "unknown"
	if h, err := os.Hostname(); err == nil {
		hostname = h
	}

	return map[string]interface{}{
		"user":     username,
		"hostname": hostname,
		"platform": runtime.GOOS + "/" + runtime.GOARCH,
		"pid":      os.Getpid(),
	}
}
