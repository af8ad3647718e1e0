// Package password implements the password handling policy used during
// attribute assembly: decoding stored passwords when their cipher is
// reversible, one-way encoding for canonical storage, and generation of
// policy-compliant random passwords for resources configured to receive
// one when no clear-text value is available.
package password

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CipherAlgorithm names a supported password cipher.
type CipherAlgorithm string

const (
	// CipherAES is the reversible cipher (AES-256-GCM).
	CipherAES CipherAlgorithm = "AES"

	// CipherBCrypt is the bcrypt one-way cipher.
	CipherBCrypt CipherAlgorithm = "BCRYPT"

	// CipherSHA256 is the SHA-256 one-way cipher.
	CipherSHA256 CipherAlgorithm = "SHA256"
)

// ErrNotReversible is returned when decoding is requested for a one-way cipher.
var ErrNotReversible = errors.New("password cipher is not reversible")

// Reversible reports whether a stored password under the given cipher can
// be decoded back to clear text.
func Reversible(alg CipherAlgorithm) bool {
	return alg == CipherAES
}

// Encryptor encodes and decodes stored passwords.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an encryptor with the given secret key. The key is
// hashed to derive the 32-byte AES key, so any non-empty secret works.
func NewEncryptor(secret []byte) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty encryption secret")
	}
	key := sha256.Sum256(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Encode encodes a clear-text password with the given cipher.
func (e *Encryptor) Encode(clear string, alg CipherAlgorithm) (string, error) {
	switch alg {
	case CipherAES:
		nonce := make([]byte, e.gcm.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return "", fmt.Errorf("generating nonce: %w", err)
		}
		sealed := e.gcm.Seal(nonce, nonce, []byte(clear), nil)
		return base64.StdEncoding.EncodeToString(sealed), nil
	case CipherBCrypt:
		hashed, err := bcrypt.GenerateFromPassword([]byte(clear), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt encoding: %w", err)
		}
		return string(hashed), nil
	case CipherSHA256:
		sum := sha256.Sum256([]byte(clear))
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported cipher algorithm %q", alg)
	}
}

// Decode decodes a stored password. Only reversible ciphers can be decoded;
// one-way ciphers return ErrNotReversible.
func (e *Encryptor) Decode(encoded string, alg CipherAlgorithm) (string, error) {
	if !Reversible(alg) {
		return "", ErrNotReversible
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding stored password: %w", err)
	}
	ns := e.gcm.NonceSize()
	if len(raw) < ns {
		return "", errors.New("stored password too short")
	}
	clear, err := e.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting stored password: %w", err)
	}
	return string(clear), nil
}

// Policy constrains generated passwords.
type Policy struct {
	// MinLength is the minimum password length.
	MinLength int

	// Digits requires at least one digit.
	Digits bool

	// Uppercase requires at least one upper-case letter.
	Uppercase bool

	// Special requires at least one character from SpecialChars.
	Special bool

	// SpecialChars is the special character alphabet; defaults apply when empty.
	SpecialChars string
}

// DefaultPolicy returns the generation policy used when a resource does not
// configure its own.
func DefaultPolicy() Policy {
	return Policy{
		MinLength: 12,
		Digits:    true,
		Uppercase: true,
	}
}

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!#$%&*+-=?@_"
)

// Generator produces random passwords satisfying a policy.
type Generator struct {
	policy Policy
}

// NewGenerator creates a generator for the given policy.
func NewGenerator(policy Policy) *Generator {
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultPolicy().MinLength
	}
	if policy.SpecialChars == "" {
		policy.SpecialChars = specialChars
	}
	return &Generator{policy: policy}
}

// Generate returns a fresh random password compliant with the policy.
func (g *Generator) Generate() (string, error) {
	alphabet := lowerChars
	var required []byte

	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[n.Int64()], nil
	}

	if g.policy.Digits {
		alphabet += digitChars
		c, err := pick(digitChars)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		required = append(required, c)
	}
	if g.policy.Uppercase {
		alphabet += upperChars
		c, err := pick(upperChars)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		required = append(required, c)
	}
	if g.policy.Special {
		alphabet += g.policy.SpecialChars
		c, err := pick(g.policy.SpecialChars)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		required = append(required, c)
	}

	out := make([]byte, g.policy.MinLength)
	for i := range out {
		c, err := pick(alphabet)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		out[i] = c
	}

	// Reserve the leading slots for the required classes, then shuffle so
	// their positions are uniform.
	copy(out, required)
	for i := len(out) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		j := int(n.Int64())
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}
