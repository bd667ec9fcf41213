package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/cadvc/pkg/repo"
)

const commitSignaturePrefix = "sshsig-v1"

func newSSHCommitSigner(keyPath string) (repo.CommitSigner, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}

	pubB64 := base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal())

	commitSigner := func(payload []byte) (string, error) {
		sig, err := signer.Sign(rand.Reader, payload)
		if err != nil {
			return "", err
		}
		sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
		return fmt.Sprintf("%s:%s:%s:%s", commitSignaturePrefix, sig.Format, pubB64, sigB64), nil
	}
	return commitSigner, resolvedPath, nil
}

// newSSHSignatureVerifier checks sshsig-v1 signatures. With a non-empty
// allowed list only those public keys are trusted; otherwise any key that
// produced a valid signature is accepted.
func newSSHSignatureVerifier(allowed []ssh.PublicKey) repo.SignatureVerifier {
	return func(payload []byte, signature string) error {
		parts := strings.Split(signature, ":")
		if len(parts) != 4 || parts[0] != commitSignaturePrefix {
			return fmt.Errorf("unsupported signature format")
		}
		pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
		if err != nil {
			return fmt.Errorf("decode public key: %w", err)
		}
		pub, err := ssh.ParsePublicKey(pubRaw)
		if err != nil {
			return fmt.Errorf("parse public key: %w", err)
		}
		blob, err := base64.StdEncoding.DecodeString(parts[3])
		if err != nil {
			return fmt.Errorf("decode signature: %w", err)
		}

		if len(allowed) > 0 && !keyAllowed(pub, allowed) {
			return fmt.Errorf("signer %s is not an allowed signer", ssh.FingerprintSHA256(pub))
		}
		return pub.Verify(payload, &ssh.Signature{Format: parts[1], Blob: blob})
	}
}

func keyAllowed(pub ssh.PublicKey, allowed []ssh.PublicKey) bool {
	m := pub.Marshal()
	for _, k := range allowed {
		if bytes.Equal(k.Marshal(), m) {
			return true
		}
	}
	return false
}

// loadAllowedSigners reads public keys in authorized_keys format.
func loadAllowedSigners(path string) ([]ssh.PublicKey, error) {
	expanded, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	rest, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read allowed signers %q: %w", expanded, err)
	}

	var keys []ssh.PublicKey
	for len(bytes.TrimSpace(rest)) > 0 {
		pub, _, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("parse allowed signers %q: %w", expanded, err)
		}
		keys = append(keys, pub)
		rest = next
	}
	return keys, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		candidate := filepath.Join(home, ".ssh", name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
