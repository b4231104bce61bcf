package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	LogLevel   string     `yaml:"log_level"`
	LogJSON    bool       `yaml:"log_json"`
	HTTPAddr   string     `yaml:"http_addr" validate:"required"`
	HSTS       bool       `yaml:"hsts"`
	Store      Store      `yaml:"store"`
	Threads    Threads    `yaml:"threads"`
	Dispatcher Dispatcher `yaml:"dispatcher"`
}

type Store struct {
	Backend   string `yaml:"backend" validate:"required,oneof=memory postgres sqlite pebble mongo"`
	CacheSize int    `yaml:"cache_size" validate:"gte=0"` // lru entries for object records, 0 disables
	Sqlite    Sqlite `yaml:"sqlite"`
	Pebble    Pebble `yaml:"pebble"`
	Mongo     Mongo  `yaml:"mongo"`
}

type Sqlite struct {
	Path string `yaml:"path"`
}

type Pebble struct {
	Path string `yaml:"path"`
}

type Mongo struct {
	Database string `yaml:"database"`
}

type Threads struct {
	PostsPerPage      int           `yaml:"posts_per_page" validate:"required,min=1,max=100"`
	UsePagination     bool          `yaml:"use_pagination"`
	PostSort          string        `yaml:"post_sort" validate:"omitempty,oneof=oldest_to_newest newest_to_oldest most_votes"`
	UnreadHorizon     time.Duration `yaml:"unread_horizon" validate:"required"`
	UnreadCap         int           `yaml:"unread_cap" validate:"required,min=1"`
	TotalUnreadWindow int           `yaml:"total_unread_window" validate:"required,min=1"` // stop index for the "any unread?" badge
	MinPostLength     int           `yaml:"min_post_length" validate:"gte=0"`
	MaxPostLength     int           `yaml:"max_post_length" validate:"required,gtfield=MinPostLength"`
	MinTitleLength    int           `yaml:"min_title_length" validate:"gte=0"`
	MaxTitleLength    int           `yaml:"max_title_length" validate:"required,gtfield=MinTitleLength"`
	TeaserLength      int           `yaml:"teaser_length" validate:"required,min=1"`
}

type Dispatcher struct {
	Workers     int           `yaml:"workers" validate:"required,min=1"`
	TaskTimeout time.Duration `yaml:"task_timeout" validate:"required"`
}

type Private struct {
	Pg Pg `yaml:"pg"`
	// MongoURI may carry credentials, so it lives in private.yaml.
	MongoURI string `yaml:"mongo_uri"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

// DSN returns a lib/pq connection string.
func (p Pg) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.Dbname)
}

// Default returns the settings used when a key is absent from public.yaml.
func Default() Public {
	return Public{
		LogLevel: "info",
		HTTPAddr: ":8080",
		Store: Store{
			Backend: "memory",
			Sqlite:  Sqlite{Path: "itforum.sqlite"},
			Pebble:  Pebble{Path: "itforum.pebble"},
			Mongo:   Mongo{Database: "itforum"},
		},
		Threads: Threads{
			PostsPerPage:      20,
			UsePagination:     true,
			PostSort:          "oldest_to_newest",
			UnreadHorizon:     24 * time.Hour,
			UnreadCap:         100,
			TotalUnreadWindow: 20,
			MinPostLength:     8,
			MaxPostLength:     32767,
			MinTitleLength:    3,
			MaxTitleLength:    255,
			TeaserLength:      255,
		},
		Dispatcher: Dispatcher{
			Workers:     8,
			TaskTimeout: 5 * time.Second,
		},
	}
}

func mustLoadPath(configPath string, output interface{}) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file")
	}

	err = yaml.Unmarshal(configFile, output)
	if err != nil {
		panic("can't unmarshal config file: " + err.Error())
	}
}

// applyEnv lets deployment secrets override private.yaml.
func (p *Private) applyEnv() {
	if v := os.Getenv("ITFORUM_PG_HOST"); v != "" {
		p.Pg.Host = v
	}
	if v := os.Getenv("ITFORUM_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			p.Pg.Port = port
		}
	}
	if v := os.Getenv("ITFORUM_PG_PASSWORD"); v != "" {
		p.Pg.Password = v
	}
	if v := os.Getenv("ITFORUM_MONGO_URI"); v != "" {
		p.MongoURI = v
	}
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c.Public); err != nil {
		return fmt.Errorf("invalid public config: %w", err)
	}
	switch c.Public.Store.Backend {
	case "postgres":
		if c.Private.Pg.Host == "" || c.Private.Pg.Dbname == "" {
			return fmt.Errorf("invalid private config: postgres backend needs pg.host and pg.dbname")
		}
	case "mongo":
		if c.Private.MongoURI == "" {
			return fmt.Errorf("invalid private config: mongo backend needs mongo_uri")
		}
	}
	return nil
}

// MustLoad reads public.yaml and private.yaml from configFolder on top of
// Default(), applies .env / environment overrides and validates the result.
func MustLoad(configFolder string) *Config {
	// .env is optional
	_ = godotenv.Load(path.Join(configFolder, ".env"))

	public := Default()
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)
	private.applyEnv()

	cfg := &Config{Public: public, Private: private}
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}
	return cfg
}
