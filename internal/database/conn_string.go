package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/roomchat/internal/config"
)

const applicationName = "roomchat"

// BuildConnString builds a PostgreSQL connection string from config.
// An empty password is left out so libpq fallbacks (.pgpass, PGPASSWORD) apply.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	user := url.User(cfg.User)
	if cfg.Password != "" {
		user = url.UserPassword(cfg.User, cfg.Password)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
