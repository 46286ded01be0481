package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Telephony TelephonyConfig
	Rules     RulesConfig
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

	// SSLMode is kept explicit for hosted-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TelephonyConfig struct {
	// BaseURL is the provider REST base, e.g. https://api.exotel.com/v1/Accounts/<sid>.
	BaseURL    string
	AccountSID string
	AuthToken  string

	// CallerID is the exophone presented to both call legs.
	CallerID string

	// RingSeconds is the ring budget applied to each call leg.
	RingSeconds int
	// RequestTimeout bounds the call-initiation HTTP request itself.
	RequestTimeout time.Duration
}

type RulesConfig struct {
	// MinInterviewSeconds is the global minimum-duration threshold below which
	// a finished interview is auto-rejected. Surveys may override it.
	MinInterviewSeconds int

	// MaxInFlightCalls caps simultaneous provider calls per interviewer.
	MaxInFlightCalls int

	// DuplicateContactRules enrolls surveys in the duplicate-contact
	// auto-rejection rule. Loaded from RULES_DUPLICATE_CONTACT, a JSON array:
	// [{"survey_id":"...","question_tag":"contact_number"}]. Enrolling a new
	// survey is a config change, never a code change.
	DuplicateContactRules []DuplicateContactRule
}

// DuplicateContactRule names the survey and the question the rule reads the
// contact answer from. At least one of the question selectors must be set.
type DuplicateContactRule struct {
	SurveyID        string `json:"survey_id"`
	QuestionText    string `json:"question_text,omitempty"`
	QuestionTag     string `json:"question_tag,omitempty"`
	QuestionPattern string `json:"question_pattern,omitempty"`
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

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Telephony.BaseURL = strings.TrimSpace(os.Getenv("TELEPHONY_BASE_URL"))
	c.Telephony.AccountSID = strings.TrimSpace(os.Getenv("TELEPHONY_ACCOUNT_SID"))
	c.Telephony.AuthToken = os.Getenv("TELEPHONY_AUTH_TOKEN")
	c.Telephony.CallerID = strings.TrimSpace(os.Getenv("TELEPHONY_CALLER_ID"))
	c.Telephony.RingSeconds = optInt("TELEPHONY_RING_SECONDS")
	c.Telephony.RequestTimeout = mustDuration("TELEPHONY_REQUEST_TIMEOUT")

	c.Rules.MinInterviewSeconds = optInt("RULES_MIN_INTERVIEW_SECONDS")
	c.Rules.MaxInFlightCalls = optInt("RULES_MAX_INFLIGHT_CALLS")
	if v := strings.TrimSpace(os.Getenv("RULES_DUPLICATE_CONTACT")); v != "" {
		if err := json.Unmarshal([]byte(v), &c.Rules.DuplicateContactRules); err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("RULES_DUPLICATE_CONTACT must be a JSON array: %v", err))
		}
	}

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

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Telephony.BaseURL == "" {
		errs = append(errs, errors.New("TELEPHONY_BASE_URL is required"))
	}
	if c.Telephony.AccountSID == "" {
		errs = append(errs, errors.New("TELEPHONY_ACCOUNT_SID is required"))
	}
	if c.Telephony.AuthToken == "" {
		errs = append(errs, errors.New("TELEPHONY_AUTH_TOKEN is required"))
	}
	if c.Telephony.CallerID == "" {
		errs = append(errs, errors.New("TELEPHONY_CALLER_ID is required"))
	}
	if c.Telephony.RingSeconds <= 0 {
		// 30s ring budget per leg.
		c.Telephony.RingSeconds = 30
	}
	if c.Telephony.RequestTimeout <= 0 {
		c.Telephony.RequestTimeout = 30 * time.Second
	}

	if c.Rules.MinInterviewSeconds <= 0 {
		c.Rules.MinInterviewSeconds = 180
	}
	if c.Rules.MaxInFlightCalls <= 0 {
		c.Rules.MaxInFlightCalls = 1
	}
	for i, r := range c.Rules.DuplicateContactRules {
		if r.SurveyID == "" {
			errs = append(errs, fmt.Errorf("RULES_DUPLICATE_CONTACT[%d]: survey_id is required", i))
		}
		if r.QuestionText == "" && r.QuestionTag == "" && r.QuestionPattern == "" {
			errs = append(errs, fmt.Errorf("RULES_DUPLICATE_CONTACT[%d]: one of question_text, question_tag, question_pattern is required", i))
		}
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
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

func (c *Config) RedisAddr() string {
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

// optInt parses an optional integer env var; zero means "apply default in Validate".
func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
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
