package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Tax     TaxConfig
	Billing BillingConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type TaxConfig struct {
	// HomeCountry is the ISO 3166-1 alpha-2 code of the seller's country.
	HomeCountry string

	// VATRatePercent is the domestic VAT rate, e.g. "25" for 25%.
	VATRatePercent decimal.Decimal

	// BlocCountries lists the tax-bloc members eligible for reverse charge,
	// comma-separated in env.
	BlocCountries []string
}

type BillingConfig struct {
	// InvoiceDueDays is added to the billing period end when the caller
	// does not supply a due date.
	InvoiceDueDays int

	// RateCacheTTL bounds how long configured rate lists live in Redis.
	RateCacheTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Tax.HomeCountry = strings.ToUpper(strings.TrimSpace(os.Getenv("TAX_HOME_COUNTRY")))
	if v := strings.TrimSpace(os.Getenv("TAX_VAT_RATE_PERCENT")); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("TAX_VAT_RATE_PERCENT must be a decimal, got %q", v))
		} else {
			c.Tax.VATRatePercent = rate
		}
	}
	c.Tax.BlocCountries = splitCountries(os.Getenv("TAX_BLOC_COUNTRIES"))

	// Billing env vars are optional; defaults applied in Validate().
	if v := strings.TrimSpace(os.Getenv("INVOICE_DUE_DAYS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("INVOICE_DUE_DAYS must be an integer, got %q", v))
		} else {
			c.Billing.InvoiceDueDays = n
		}
	}
	c.Billing.RateCacheTTL = mustDuration("RATE_CACHE_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Tax.HomeCountry == "" {
		errs = append(errs, errors.New("TAX_HOME_COUNTRY is required"))
	} else if len(c.Tax.HomeCountry) != 2 {
		errs = append(errs, fmt.Errorf("TAX_HOME_COUNTRY must be a 2-letter country code, got %q", c.Tax.HomeCountry))
	}
	if c.Tax.VATRatePercent.IsNegative() {
		errs = append(errs, fmt.Errorf("TAX_VAT_RATE_PERCENT must not be negative, got %s", c.Tax.VATRatePercent))
	}

	if c.Billing.InvoiceDueDays < 0 {
		errs = append(errs, fmt.Errorf("INVOICE_DUE_DAYS must not be negative, got %d", c.Billing.InvoiceDueDays))
	}
	if c.Billing.InvoiceDueDays == 0 {
		c.Billing.InvoiceDueDays = 30
	}
	if c.Billing.RateCacheTTL <= 0 {
		c.Billing.RateCacheTTL = 30 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitCountries(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		cc := strings.ToUpper(strings.TrimSpace(part))
		if cc != "" {
			out = append(out, cc)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
