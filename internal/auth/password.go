package auth

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Passwords hashes new passwords with bcrypt. Verify also accepts hashes
// written by the Werkzeug helpers ("pbkdf2:sha256:N$salt$hex" and
// "scrypt:N:r:p$salt$hex") so accounts created before the move keep working.
type Passwords struct {
	Cost int
}

func (p Passwords) Hash(password string) (string, error) {
	cost := p.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p Passwords) Verify(stored, password string) bool {
	switch {
	case strings.HasPrefix(stored, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	case strings.HasPrefix(stored, "pbkdf2:"), strings.HasPrefix(stored, "scrypt:"):
		return verifyWerkzeug(stored, password)
	}
	return false
}

// NeedsRehash reports whether stored should be replaced with a bcrypt hash
// on the next successful login.
func (p Passwords) NeedsRehash(stored string) bool {
	return !strings.HasPrefix(stored, "$2")
}

func verifyWerkzeug(stored, password string) bool {
	parts := strings.SplitN(stored, "$", 3)
	if len(parts) != 3 {
		return false
	}
	method, salt, want := parts[0], parts[1], parts[2]
	expected, err := hex.DecodeString(want)
	if err != nil {
		return false
	}

	args := strings.Split(method, ":")
	var got []byte
	switch args[0] {
	case "pbkdf2":
		if len(args) != 3 {
			return false
		}
		h, size := digest(args[1])
		iter, err := strconv.Atoi(args[2])
		if h == nil || err != nil || iter <= 0 {
			return false
		}
		got = pbkdf2.Key([]byte(password), []byte(salt), iter, size, h)
	case "scrypt":
		if len(args) != 4 {
			return false
		}
		n, errN := strconv.Atoi(args[1])
		r, errR := strconv.Atoi(args[2])
		p, errP := strconv.Atoi(args[3])
		if errN != nil || errR != nil || errP != nil {
			return false
		}
		got, err = scrypt.Key([]byte(password), []byte(salt), n, r, p, 64)
		if err != nil {
			return false
		}
	default:
		return false
	}
	return subtle.ConstantTimeCompare(got, expected) == 1
}

func digest(name string) (func() hash.Hash, int) {
	switch name {
	case "sha1":
		return sha1.New, sha1.Size
	case "sha256":
		return sha256.New, sha256.Size
	case "sha512":
		return sha512.New, sha512.Size
	}
	return nil, 0
}
