package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/docwiki/internal/config"
)

// ErrUnknownCredential is returned when a source names a credential handle
// that is not configured.
var ErrUnknownCredential = errors.New("unknown credential handle")

// resolveAuth returns the go-git AuthMethod for a credential handle. An empty
// handle means anonymous access.
func (a *Acquirer) resolveAuth(handle string) (transport.AuthMethod, error) {
	if handle == "" {
		return nil, nil
	}
	cred, ok := a.credentials[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCredential, handle)
	}
	return authMethod(cred)
}

func authMethod(cred config.CredentialConfig) (transport.AuthMethod, error) {
	switch cred.Type {
	case config.AuthTypeSSH:
		keyPath := cred.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		}
		user := cred.Username
		if user == "" {
			user = "git"
		}
		publicKeys, err := ssh.NewPublicKeysFromFile(user, keyPath, cred.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath, err)
		}
		return publicKeys, nil

	case config.AuthTypeToken:
		if cred.Token == "" {
			return nil, errors.New("token authentication requires a token")
		}
		user := cred.Username
		if user == "" {
			user = "token" // GitHub/GitLab accept any non-empty username with a token
		}
		return &http.BasicAuth{Username: user, Password: cred.Token}, nil

	case config.AuthTypeBasic:
		if cred.Username == "" || cred.Password == "" {
			return nil, errors.New("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: cred.Username, Password: cred.Password}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", cred.Type)
	}
}
