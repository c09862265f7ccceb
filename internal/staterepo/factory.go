package staterepo

import (
	"fmt"

	"github.com/agentworkd/orchestrator/internal/staterepo/filestore"
	"github.com/agentworkd/orchestrator/internal/staterepo/memory"
	"github.com/agentworkd/orchestrator/internal/staterepo/sqlitestore"
)

// BackendKind names a state repository backend selectable from
// configuration.
type BackendKind string

const (
	BackendMemory   BackendKind = "memory"
	BackendFile     BackendKind = "file"
	BackendRelation BackendKind = "sqlite"
)

// Config resolves which backend New builds and its backend-specific
// settings. Only the fields relevant to Kind need be set.
type Config struct {
	Kind      BackendKind
	FileDir   string
	SqliteDSN string
}

// New builds the configured backend, failing immediately if its
// settings are invalid or its storage is unreachable, rather than
// deferring that failure to the first call.
func New(cfg Config) (Repository, error) {
	switch cfg.Kind {
	case BackendMemory, "":
		return memory.New(), nil
	case BackendFile:
		if cfg.FileDir == "" {
			return nil, fmt.Errorf("file state repository requires a directory")
		}
		return filestore.New(cfg.FileDir)
	case BackendRelation:
		if cfg.SqliteDSN == "" {
			return nil, fmt.Errorf("sqlite state repository requires a DSN")
		}
		return sqlitestore.Open(cfg.SqliteDSN)
	default:
		return nil, fmt.Errorf("unknown state repository backend: %q", cfg.Kind)
	}
}
