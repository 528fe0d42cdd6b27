package app

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

// signers holds the HS256 signers derived from the master secret. Session
// tokens and federation state use separate keys so neither can be replayed
// as the other even before the audience check.
type signers struct {
	session *jwtx.HMAC
	state   *jwtx.HMAC
}

// loadSigners reads the master secret from cfg.SigningKeyFile, creating it on
// first start. Sessions stay valid across restarts as long as the file does.
func loadSigners(cfg Config) (signers, error) {
	master, err := cryptox.LoadOrCreateSecret(cfg.SigningKeyFile)
	if err != nil {
		return signers{}, fmt.Errorf("load signing key: %w", err)
	}

	session, err := deriveSigner(master, "gatehouse session v1", cfg.Issuer)
	if err != nil {
		return signers{}, err
	}
	state, err := deriveSigner(master, "gatehouse federation state v1", cfg.Issuer)
	if err != nil {
		return signers{}, err
	}
	return signers{session: session, state: state}, nil
}

func deriveSigner(master []byte, info, issuer string) (*jwtx.HMAC, error) {
	key := make([]byte, jwtx.MinKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %q key: %w", info, err)
	}
	return jwtx.NewHMAC(key, issuer)
}
