package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	tokenSalt  = []byte("academy.core.user.token_gen")
	tokenEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	stampCodec = base32.StdEncoding.WithPadding(base32.NoPadding)

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// tokenGenerator makes and verifies password reset tokens: `<day stamp>-<signature>`.
// The day stamp counts the days since 2001, base32 encoded. The signature covers the user's
// password hash and last login, so a token dies with the next password change or login.
type tokenGenerator struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time // mockable
}

// EncodeUID base64 encodes the User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	return string(id), err
}

func dayStamp(t time.Time) int {
	return int(math.Ceil(t.Sub(tokenEpoch).Hours() / 24))
}

func (g tokenGenerator) makeToken(usr User) (string, error) {
	return g.tokenAt(usr, dayStamp(g.now()))
}

func (g tokenGenerator) verifyToken(usr User, token string) error {
	day, ok := parseDayStamp(token)
	if !ok {
		return errInvalidToken
	}

	want, err := g.tokenAt(usr, day)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(token)) {
		return errInvalidToken
	}
	if dayStamp(g.now())-day > int(g.timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func parseDayStamp(token string) (int, bool) {
	stamp, _, found := strings.Cut(token, "-")
	if !found {
		return 0, false
	}
	raw, err := stampCodec.DecodeString(stamp)
	if err != nil {
		return 0, false
	}
	day, err := strconv.Atoi(string(raw))
	return day, err == nil
}

// tokenAt returns the token of usr for the given day stamp.
func (g tokenGenerator) tokenAt(usr User, day int) (string, error) {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), g.secret...))
	mac := hmac.New(sha256.New, key[:])

	var lastLogin []byte
	if !usr.LastLogin.IsZero() {
		lastLogin = []byte(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	dayStr := strconv.Itoa(day)
	for _, part := range [][]byte{[]byte(usr.ID), usr.PasswordHash, lastLogin, []byte(dayStr)} {
		if _, err := mac.Write(part); err != nil {
			return "", err
		}
	}
	return stampCodec.EncodeToString([]byte(dayStr)) + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
