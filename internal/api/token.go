package api

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/nao1215/unseen/internal/jsonfile"
)

// ErrNoToken is returned by ReadTokenFile when the file holds no token.
var ErrNoToken = errors.New("token file holds no token")

type tokenFile struct {
	Token string `json:"token"`
}

// NewToken returns a random bearer token.
func NewToken() string {
	return rand.Text()
}

// WriteTokenFile stores token at path. The file is created with mode 0600
// and replaces any previous file.
func WriteTokenFile(path, token string) error {
	if token == "" {
		return ErrNoToken
	}
	if err := jsonfile.Save(path, tokenFile{Token: token}); err != nil {
		return fmt.Errorf("write API token: %w", err)
	}
	return nil
}

// ReadTokenFile returns the token stored by WriteTokenFile. A missing file
// reports os.ErrNotExist.
func ReadTokenFile(path string) (string, error) {
	var f tokenFile
	if err := jsonfile.Load(path, &f); err != nil {
		return "", fmt.Errorf("read API token: %w", err)
	}
	if f.Token == "" {
		return "", fmt.Errorf("%w: %s", ErrNoToken, path)
	}
	return f.Token, nil
}
