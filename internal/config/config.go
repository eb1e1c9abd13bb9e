package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/joho/godotenv"
)

const (
	StoreTypePostgres = "postgres"
	StoreTypeMongo    = "mongo"
	StoreTypeMemory   = "memory"
)

type Config struct {
	Database   DatabaseConfig
	MongoDB    MongoDBConfig
	JWT        JWTConfig
	App        AppConfig
	Attendance AttendanceConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MongoDBConfig struct {
	URI      string
	Database string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port               int
	Env                string
	LogLevel           string
	StoreType          string
	DefaultLocale      string
	CORSAllowedOrigins []string
}

// AttendanceConfig holds the ledger policy as read from the environment
type AttendanceConfig struct {
	Timezone            string
	WorkStart           string
	WorkEnd             string
	GraceMinutes        int
	RegularMinutes      int
	HalfDayFraction     float64
	DefaultBreakMinutes int
	CancelWindow        time.Duration
	AbsenceJobInterval  time.Duration
	Workdays            []string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, using process environment", "error", err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "timecard"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	config.MongoDB = MongoDBConfig{
		URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		Database: getEnv("MONGODB_DATABASE", "timecard"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:               appPort,
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreType:          strings.ToLower(getEnv("STORE_TYPE", StoreTypePostgres)),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		CORSAllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Attendance policy
	graceMinutes, err := strconv.Atoi(getEnv("ATTENDANCE_GRACE_MINUTES", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_GRACE_MINUTES: %w", err)
	}
	regularMinutes, err := strconv.Atoi(getEnv("ATTENDANCE_REGULAR_MINUTES", "480"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_REGULAR_MINUTES: %w", err)
	}
	halfDayFraction, err := strconv.ParseFloat(getEnv("ATTENDANCE_HALF_DAY_FRACTION", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_HALF_DAY_FRACTION: %w", err)
	}
	defaultBreakMinutes, err := strconv.Atoi(getEnv("ATTENDANCE_DEFAULT_BREAK_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_DEFAULT_BREAK_MINUTES: %w", err)
	}
	cancelWindow, err := time.ParseDuration(getEnv("ATTENDANCE_CANCEL_WINDOW", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_CANCEL_WINDOW: %w", err)
	}
	absenceJobInterval, err := time.ParseDuration(getEnv("ABSENCE_JOB_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ABSENCE_JOB_INTERVAL: %w", err)
	}

	workdays := getEnvSlice("ATTENDANCE_WORKDAYS")
	if len(workdays) == 0 {
		workdays = []string{"mon", "tue", "wed", "thu", "fri"}
	}

	config.Attendance = AttendanceConfig{
		Timezone:            getEnv("ATTENDANCE_TIMEZONE", "Asia/Tokyo"),
		WorkStart:           getEnv("ATTENDANCE_WORK_START", "09:00"),
		WorkEnd:             getEnv("ATTENDANCE_WORK_END", "18:00"),
		GraceMinutes:        graceMinutes,
		RegularMinutes:      regularMinutes,
		HalfDayFraction:     halfDayFraction,
		DefaultBreakMinutes: defaultBreakMinutes,
		CancelWindow:        cancelWindow,
		AbsenceJobInterval:  absenceJobInterval,
		Workdays:            workdays,
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.App.StoreType {
	case StoreTypePostgres:
		if c.Database.Password == "" {
			return errors.New("DB_PASSWORD is required")
		}
	case StoreTypeMongo:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI is required")
		}
	case StoreTypeMemory:
	default:
		return fmt.Errorf("STORE_TYPE must be one of %s, %s, %s", StoreTypePostgres, StoreTypeMongo, StoreTypeMemory)
	}

	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}
	if c.Attendance.RegularMinutes <= 0 {
		return errors.New("ATTENDANCE_REGULAR_MINUTES must be positive")
	}
	if c.Attendance.GraceMinutes < 0 {
		return errors.New("ATTENDANCE_GRACE_MINUTES must not be negative")
	}
	if c.Attendance.DefaultBreakMinutes < 0 {
		return errors.New("ATTENDANCE_DEFAULT_BREAK_MINUTES must not be negative")
	}
	if c.Attendance.HalfDayFraction < 0 || c.Attendance.HalfDayFraction >= 1 {
		return errors.New("ATTENDANCE_HALF_DAY_FRACTION must be in [0, 1)")
	}
	if c.Attendance.CancelWindow < 0 {
		return errors.New("ATTENDANCE_CANCEL_WINDOW must not be negative")
	}

	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy builds the attendance policy from the ATTENDANCE_* settings.
func (c *Config) Policy() (attendance.Policy, error) {
	loc, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		return attendance.Policy{}, fmt.Errorf("invalid ATTENDANCE_TIMEZONE: %w", err)
	}
	start, err := attendance.ParseClockTime(c.Attendance.WorkStart)
	if err != nil {
		return attendance.Policy{}, fmt.Errorf("invalid ATTENDANCE_WORK_START: %w", err)
	}
	end, err := attendance.ParseClockTime(c.Attendance.WorkEnd)
	if err != nil {
		return attendance.Policy{}, fmt.Errorf("invalid ATTENDANCE_WORK_END: %w", err)
	}
	if end.Hour*60+end.Minute <= start.Hour*60+start.Minute {
		return attendance.Policy{}, errors.New("ATTENDANCE_WORK_END must be after ATTENDANCE_WORK_START")
	}
	workdays, err := parseWorkdays(c.Attendance.Workdays)
	if err != nil {
		return attendance.Policy{}, fmt.Errorf("invalid ATTENDANCE_WORKDAYS: %w", err)
	}

	return attendance.Policy{
		Location:            loc,
		WorkStart:           start,
		WorkEnd:             end,
		GracePeriod:         time.Duration(c.Attendance.GraceMinutes) * time.Minute,
		RegularWorkMinutes:  c.Attendance.RegularMinutes,
		HalfDayFraction:     c.Attendance.HalfDayFraction,
		DefaultBreakMinutes: c.Attendance.DefaultBreakMinutes,
		CancelWindow:        c.Attendance.CancelWindow,
		Workdays:            workdays,
	}, nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// LogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWorkdays(values []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if len(key) > 3 {
			key = key[:3]
		}
		day, ok := weekdays[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", v)
		}
		days = append(days, day)
	}
	return days, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
