package settings

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/text/currency"
)

// Keys of the settings table.
const (
	KeyStoreName       = "store_name"
	KeySupportEmail    = "support_email"
	KeyStorePhone      = "store_phone"
	KeyStoreCurrency   = "store_currency"
	KeyStoreTaxID      = "store_tax_id"
	KeyStoreAddress    = "store_address"
	KeyMaintenanceMode = "maintenance_mode"
)

const (
	DefaultStoreName    = "ShopKart"
	DefaultSupportEmail = "support@shopkart.com"
	DefaultCurrency     = "INR"
)

// ErrInvalid wraps every settings validation failure.
var ErrInvalid = errors.New("invalid settings")

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9\s-]{10,}$`)
)

// Settings is the typed view of the store's key/value configuration.
type Settings struct {
	StoreName       string
	SupportEmail    string
	Phone           string
	Currency        string
	TaxID           string
	Address         string
	MaintenanceMode bool
}

// Defaults returns the settings used for missing keys.
func Defaults() Settings {
	return Settings{
		StoreName:    DefaultStoreName,
		SupportEmail: DefaultSupportEmail,
		Currency:     DefaultCurrency,
	}
}

// FromMap builds Settings from stored rows. Empty or missing values fall
// back to Defaults.
func FromMap(m map[string]string) Settings {
	s := Defaults()
	if v := m[KeyStoreName]; v != "" {
		s.StoreName = v
	}
	if v := m[KeySupportEmail]; v != "" {
		s.SupportEmail = v
	}
	if v := m[KeyStoreCurrency]; v != "" {
		s.Currency = strings.ToUpper(v)
	}
	s.Phone = m[KeyStorePhone]
	s.TaxID = m[KeyStoreTaxID]
	s.Address = m[KeyStoreAddress]
	s.MaintenanceMode, _ = strconv.ParseBool(m[KeyMaintenanceMode])
	return s
}

// ToMap returns the rows to upsert for s.
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		KeyStoreName:       s.StoreName,
		KeySupportEmail:    s.SupportEmail,
		KeyStorePhone:      s.Phone,
		KeyStoreCurrency:   s.Currency,
		KeyStoreTaxID:      s.TaxID,
		KeyStoreAddress:    s.Address,
		KeyMaintenanceMode: strconv.FormatBool(s.MaintenanceMode),
	}
}

// Validate checks the fields an admin may edit. Empty email and phone are
// allowed.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.StoreName) == "" {
		return errors.Wrap(ErrInvalid, "store name is required")
	}
	if s.SupportEmail != "" && !ValidEmail(s.SupportEmail) {
		return errors.Wrap(ErrInvalid, "invalid email address")
	}
	if s.Phone != "" && !phoneRe.MatchString(s.Phone) {
		return errors.Wrap(ErrInvalid, "invalid phone format")
	}
	if _, err := currency.ParseISO(s.Currency); err != nil {
		return errors.Wrapf(ErrInvalid, "unknown currency %q", s.Currency)
	}
	return nil
}

// ValidEmail reports whether v looks like an email address.
func ValidEmail(v string) bool {
	return emailRe.MatchString(v)
}
