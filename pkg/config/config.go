package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Type         string `yaml:"type" json:"type"`
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password" json:"password"`
	DatabaseName string `yaml:"database_name" json:"database_name"`
	DSN          string `yaml:"dsn" json:"dsn"` // optional explicit DSN
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

type AppConfig struct {
	Database DBConfig  `yaml:"database" json:"database"`
	Log      LogConfig `yaml:"log" json:"log"`
}

// Environment variables consulted by LoadEnv.
const (
	EnvDBType     = "BEDROCK_DB_TYPE"
	EnvDBHost     = "BEDROCK_DB_HOST"
	EnvDBPort     = "BEDROCK_DB_PORT"
	EnvDBUser     = "BEDROCK_DB_USERNAME"
	EnvDBPassword = "BEDROCK_DB_PASSWORD"
	EnvDBName     = "BEDROCK_DB_DATABASE"
	EnvDBDSN      = "BEDROCK_DB_DSN"
	EnvLogLevel   = "BEDROCK_LOG_LEVEL"
)

// LoadFile loads YAML config from path.
func LoadFile(path string) (AppConfig, error) {
	var cfg AppConfig
	f, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnv reads the given .env files (missing files are skipped) into the
// process environment and applies any BEDROCK_* overrides to cfg. Variables
// already set in the environment win over values from the files.
func LoadEnv(cfg AppConfig, files ...string) (AppConfig, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return cfg, fmt.Errorf("load env files: %w", err)
		}
	}

	if v, ok := os.LookupEnv(EnvDBType); ok {
		cfg.Database.Type = v
	}
	if v, ok := os.LookupEnv(EnvDBHost); ok {
		cfg.Database.Host = v
	}
	if v, ok := os.LookupEnv(EnvDBPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvDBPort, err)
		}
		cfg.Database.Port = port
	}
	if v, ok := os.LookupEnv(EnvDBUser); ok {
		cfg.Database.Username = v
	}
	if v, ok := os.LookupEnv(EnvDBPassword); ok {
		cfg.Database.Password = v
	}
	if v, ok := os.LookupEnv(EnvDBName); ok {
		cfg.Database.DatabaseName = v
	}
	if v, ok := os.LookupEnv(EnvDBDSN); ok {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return cfg, nil
}

// NormalizeDriver maps common aliases to canonical keys (keeps backwards compat).
func NormalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "postgresql", "pg", "postgres":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "mssql", "sqlserver":
		return "sqlserver"
	case "godror", "oracle":
		return "godror"
	default:
		return strings.ToLower(d)
	}
}

// BuildDriverAndDSN produces a driver name and DSN string for supported DB
// types. Only engines that keep table and column comments in their catalog
// are supported.
func BuildDriverAndDSN(db DBConfig) (driver string, dsn string, err error) {
	t := NormalizeDriver(db.Type)

	switch t {
	case "postgres", "mysql":
	default:
		return "", "", fmt.Errorf("unsupported database type: %s", db.Type)
	}

	if db.DSN != "" {
		return t, db.DSN, nil
	}

	switch t {
	case "postgres":
		driver = "postgres"
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	case "mysql":
		driver = "mysql"
		mc := mysql.NewConfig()
		mc.User = db.Username
		mc.Passwd = db.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
		mc.DBName = db.DatabaseName
		mc.ParseTime = true
		dsn = mc.FormatDSN()
	}
	return
}

// DatabaseName returns the schema name the DSN points at, falling back to
// the configured database_name.
func DatabaseName(db DBConfig) string {
	if db.DSN != "" && NormalizeDriver(db.Type) == "mysql" {
		if mc, err := mysql.ParseDSN(db.DSN); err == nil && mc.DBName != "" {
			return mc.DBName
		}
	}
	return db.DatabaseName
}
