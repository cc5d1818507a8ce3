// ABOUTME: Credential store for the opaque bearer token used by the API and hub
// ABOUTME: Reads from the SUPPORTCHAT_TOKEN env var or a token file, with local expiry checks

package auth

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnvToken is the environment variable checked before the token file.
const EnvToken = "SUPPORTCHAT_TOKEN"

// CredentialStore resolves the session credential. The token is opaque to
// every caller except Expired, which peeks at the exp claim so the client
// never attempts a handshake that the server is guaranteed to reject.
type CredentialStore struct {
	// tokenPath overrides the default file location when non-empty.
	tokenPath string
	logger    *slog.Logger
}

// NewCredentialStore creates a store. Pass an empty tokenPath to use the
// default location and nil logger for slog.Default.
func NewCredentialStore(tokenPath string, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{
		tokenPath: tokenPath,
		logger:    logger.With("component", "credentials"),
	}
}

// Token returns the bearer token from the SUPPORTCHAT_TOKEN env var or the
// token file. Returns "" when no credential is available or the stored one
// has already expired; anonymous sessions never open the push channel.
func (s *CredentialStore) Token() string {
	token := s.rawToken()
	if token == "" {
		return ""
	}
	if Expired(token) {
		s.logger.Warn("stored credential is expired, treating session as anonymous")
		return ""
	}
	return token
}

// rawToken reads the credential without any expiry check.
func (s *CredentialStore) rawToken() string {
	if token := os.Getenv(EnvToken); token != "" {
		return token
	}

	path := s.tokenPath
	if path == "" {
		path = defaultTokenPath()
		if path == "" {
			return ""
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// defaultTokenPath returns ~/.config/supportchat/token, honoring XDG_CONFIG_HOME.
func defaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "supportchat", "token")
}

// Expired reports whether the token carries an exp claim in the past.
// The client holds no signing secret, so the token is parsed unverified;
// a token that does not parse as a JWT is treated as unexpired and left
// for the server to judge.
func Expired(token string) bool {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
