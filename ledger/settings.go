package ledger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Settings are the shop preferences. Keys this package does not know about
// are kept in Extra and written back unchanged.
type Settings struct {
	ShopName      string
	Currency      string
	LoginPassword string
	AdminPassword string

	Extra map[string]json.RawMessage
}

var settingsKeys = []string{"shopName", "currency", "loginPassword", "adminPassword"}

func (s *Settings) fields() []*string {
	return []*string{&s.ShopName, &s.Currency, &s.LoginPassword, &s.AdminPassword}
}

func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+len(settingsKeys))
	for k, v := range s.Extra {
		out[k] = v
	}
	for i, f := range s.fields() {
		if *f == "" {
			delete(out, settingsKeys[i])
			continue
		}
		raw, err := json.Marshal(*f)
		if err != nil {
			return nil, err
		}
		out[settingsKeys[i]] = raw
	}
	return json.Marshal(out)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Settings{}
	fields := s.fields()
	for i, key := range settingsKeys {
		raw, ok := in[key]
		if !ok {
			continue
		}
		delete(in, key)
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*fields[i] = toString(v)
	}
	if len(in) > 0 {
		s.Extra = in
	}
	return nil
}

// BackfillPasswords fills missing credentials with hashed defaults and
// reports whether anything was filled.
func (s *Settings) BackfillPasswords(d Defaults) bool {
	filled := false
	if strings.TrimSpace(s.LoginPassword) == "" && d.LoginPassword != "" {
		s.LoginPassword = HashPassword(d.LoginPassword)
		filled = true
	}
	if strings.TrimSpace(s.AdminPassword) == "" && d.AdminPassword != "" {
		s.AdminPassword = HashPassword(d.AdminPassword)
		filled = true
	}
	return filled
}

// =============================================================================
// PASSWORDS
// =============================================================================

// HashPassword returns a bcrypt hash. If hashing fails the plain value is
// returned so the shop is never locked out; VerifyPassword accepts both.
func HashPassword(plain string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return plain
	}
	return string(hash)
}

// VerifyPassword checks a candidate against a stored bcrypt hash, or against
// a plain-text value carried over from a legacy document.
func VerifyPassword(stored, candidate string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// =============================================================================
// ENGINE ENTRY POINTS
// =============================================================================

type PasswordKind string

const (
	LoginPassword PasswordKind = "login"
	AdminPassword PasswordKind = "admin"
)

// ChangePassword replaces the login or admin password after checking the
// current one. The new value is stored as a bcrypt hash.
func (e *Engine) ChangePassword(ctx context.Context, kind PasswordKind, current, next string) error {
	_, err := e.mutate(ctx, "change_password", func(c *change) (bool, error) {
		var stored *string
		switch kind {
		case LoginPassword:
			stored = &c.doc.Settings.LoginPassword
		case AdminPassword:
			stored = &c.doc.Settings.AdminPassword
		default:
			return false, invalid("settings", "kind", "oneof")
		}
		if strings.TrimSpace(next) == "" {
			return false, invalid("settings", "password", "required")
		}
		if !VerifyPassword(*stored, current) {
			return false, ErrUnauthorized
		}
		*stored = HashPassword(next)
		c.notify("Password changed", NotifySuccess)
		return true, nil
	})
	return err
}

// SettingsPatch updates display preferences. Passwords go through
// ChangePassword.
type SettingsPatch struct {
	ShopName *string `json:"shopName,omitempty"`
	Currency *string `json:"currency,omitempty"`
}

func (e *Engine) UpdateSettings(ctx context.Context, patch SettingsPatch) (bool, error) {
	return e.mutate(ctx, "update_settings", func(c *change) (bool, error) {
		changed := false
		if patch.ShopName != nil {
			c.doc.Settings.ShopName = strings.TrimSpace(*patch.ShopName)
			changed = true
		}
		if patch.Currency != nil {
			c.doc.Settings.Currency = strings.TrimSpace(*patch.Currency)
			changed = true
		}
		return changed, nil
	})
}
