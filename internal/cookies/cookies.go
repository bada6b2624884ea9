// Package cookies recovers the claude.ai sessionKey from the Claude desktop
// app's Chromium cookie store, so cookie-mode polling can work without the
// user pasting a key by hand. macOS only; the key material lives in the
// login keychain under "Claude Safe Storage".
package cookies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/pbkdf2"
)

// Chromium v10 cookie encryption parameters on macOS.
const (
	keySalt       = "saltysalt"
	keyIterations = 1003
	keyLen        = 16
	valuePrefix   = 32 // decrypted values carry a 32-byte header
)

// SessionKey returns the decrypted claude.ai sessionKey cookie from the
// desktop app, or an error when extraction is not possible on this host.
func SessionKey() (string, error) {
	if runtime.GOOS != "darwin" {
		return "", fmt.Errorf("desktop cookie extraction only supported on macOS")
	}

	key, err := encryptionKey()
	if err != nil {
		return "", fmt.Errorf("getting encryption key: %w", err)
	}

	dbPath := filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Claude", "Cookies")
	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("Claude desktop Cookies DB not found: %s", dbPath)
	}

	encrypted, err := readEncryptedSessionKey(dbPath)
	if err != nil {
		return "", err
	}

	value, err := decryptCookie(encrypted, key)
	if err != nil {
		return "", fmt.Errorf("decrypting sessionKey: %w", err)
	}
	return value, nil
}

// encryptionKey derives the AES key from the app's keychain password the way
// Chromium does on macOS.
func encryptionKey() ([]byte, error) {
	cmd := exec.Command("security", "find-generic-password", "-w", "-s", "Claude Safe Storage", "-a", "Claude")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("keychain lookup failed (is Claude desktop installed?): %w", err)
	}
	password := strings.TrimSpace(string(out))
	return pbkdf2.Key([]byte(password), []byte(keySalt), keyIterations, keyLen, sha1.New), nil
}

// readEncryptedSessionKey copies the live DB aside before opening it, since
// the desktop app holds it locked while running.
func readEncryptedSessionKey(dbPath string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "claudeusage-cookies-*.db")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	src, err := os.ReadFile(dbPath)
	if err != nil {
		return nil, fmt.Errorf("reading cookies DB: %w", err)
	}
	if err := os.WriteFile(tmpPath, src, 0o600); err != nil {
		return nil, fmt.Errorf("writing temp cookies DB: %w", err)
	}

	db, err := sql.Open("sqlite3", tmpPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening cookies DB: %w", err)
	}
	defer db.Close()

	var encrypted []byte
	err = db.QueryRow(
		"SELECT encrypted_value FROM cookies WHERE host_key LIKE '%claude.ai%' AND name = 'sessionKey'",
	).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sessionKey cookie not found (Claude desktop app may not be logged in)")
	}
	if err != nil {
		return nil, fmt.Errorf("querying cookies: %w", err)
	}
	return encrypted, nil
}

func decryptCookie(encrypted, key []byte) (string, error) {
	if len(encrypted) < 3 {
		return "", fmt.Errorf("encrypted value too short")
	}
	if prefix := string(encrypted[:3]); prefix != "v10" {
		return "", fmt.Errorf("unexpected cookie encryption version: %q", prefix)
	}
	ciphertext := encrypted[3:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext not aligned to block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}

	iv := []byte("                ") // 16 spaces, per Chromium
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	if len(plaintext) == 0 {
		return "", fmt.Errorf("empty plaintext")
	}
	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", fmt.Errorf("invalid PKCS7 padding")
	}
	plaintext = plaintext[:len(plaintext)-padLen]

	if len(plaintext) <= valuePrefix {
		return "", fmt.Errorf("decrypted value too short (len=%d)", len(plaintext))
	}
	return string(plaintext[valuePrefix:]), nil
}
