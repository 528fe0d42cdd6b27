package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const secretSize = 32

// LoadOrCreateSecret reads the secret stored at path, creating the file with
// a fresh random value on first start. Used for the password pepper and the
// token signing key; losing the pepper makes every stored hash unverifiable.
func LoadOrCreateSecret(path string) ([]byte, error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		p := strings.TrimSpace(string(data))
		if p == "" {
			return nil, fmt.Errorf("secret file %s is empty", path)
		}
		return []byte(p), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	buf := make([]byte, secretSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	p := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(p), 0o600); err != nil {
		return nil, fmt.Errorf("write secret: %w", err)
	}
	return []byte(p), nil
}
