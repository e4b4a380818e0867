package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const serverIDFile = ".server_id"

// GetPersistentServerID returns a stable identity for this process, used as the
// owner of distributed locks and as the sender id of websocket fan-out.
// Resolution order: override, stored id file, sanitized hostname, a new random id
// persisted under storagePath.
func GetPersistentServerID(override, storagePath string) string {
	if override != "" {
		return override
	}

	idFile := filepath.Join(storagePath, serverIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if host := sanitizeHost(); host != "" {
		return "azconnect-" + host
	}

	newID := "azconnect-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	_ = os.MkdirAll(storagePath, 0755)
	_ = os.WriteFile(idFile, []byte(newID), 0644)
	return newID
}

func sanitizeHost() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" || hostname == "localhost" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return -1
	}, hostname)
}
