package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Relay directions checked by MissingFor.
const (
	DirectionToCrm     = "wa_to_b24"
	DirectionToGateway = "b24_to_wa"
)

type Config struct {
	Env    string `yaml:"env" env:"ENV" env-default:"local"`
	Listen struct {
		BindIP        string `yaml:"bind_ip" env:"BIND_IP" env-default:"127.0.0.1"`
		Port          string `yaml:"port" env:"PORT" env-default:"9100"`
		ApiKey        string `yaml:"key" env:"API_KEY" env-default:""`
		WebhookSecret string `yaml:"webhook_secret" env:"WEBHOOK_SECRET" env-default:""`
		PublicURL     string `yaml:"public_url" env:"PUBLIC_URL" env-default:""`
	} `yaml:"listen"`
	Bitrix struct {
		ClientID        string        `yaml:"client_id" env:"B24_CLIENT_ID" env-default:""`
		ClientSecret    string        `yaml:"client_secret" env:"B24_CLIENT_SECRET" env-default:""`
		RefreshToken    string        `yaml:"refresh_token" env:"B24_REFRESH_TOKEN" env-default:""`
		AccessToken     string        `yaml:"access_token" env:"B24_ACCESS_TOKEN" env-default:""`
		ClientEndpoint  string        `yaml:"client_endpoint" env:"B24_ENDPOINT" env-default:""`
		PortalDomain    string        `yaml:"portal" env:"B24_PORTAL" env-default:""`
		MemberID        string        `yaml:"member_id" env:"B24_MEMBER_ID" env-default:""`
		OAuthURL        string        `yaml:"oauth_url" env:"B24_OAUTH_URL" env-default:"https://oauth.bitrix.info/oauth/token/"`
		ConnectorID     string        `yaml:"connector_id" env:"CONNECTOR_SEND_ID" env-default:"evolution_custom"`
		ConnectorName   string        `yaml:"connector_name" env:"CONNECTOR_NAME" env-default:"WhatsApp (Evolution)"`
		LineID          string        `yaml:"line_id" env:"B24_LINE_ID" env-default:""`
		Event           string        `yaml:"event" env:"B24_EVENT" env-default:"OnImConnectorMessageAdd"`
		SafetyMargin    time.Duration `yaml:"safety_margin" env:"B24_TOKEN_MARGIN" env-default:"30s"`
		PlaceholderText string        `yaml:"placeholder_text" env:"B24_PLACEHOLDER_TEXT" env-default:"[media]"`
		ConfirmRead     bool          `yaml:"confirm_read" env:"B24_CONFIRM_READ" env-default:"true"`
	} `yaml:"bitrix"`
	Evolution struct {
		BaseURL      string `yaml:"base_url" env:"EVOLUTION_BASE_URL" env-default:""`
		Token        string `yaml:"token" env:"EVOLUTION_TOKEN" env-default:""`
		SendPath     string `yaml:"send_path" env:"EVOLUTION_SEND_PATH" env-default:"/message/text"`
		MediaPath    string `yaml:"media_path" env:"EVOLUTION_MEDIA_PATH" env-default:"/message/media"`
		StatusPath   string `yaml:"status_path" env:"EVOLUTION_STATUS_PATH" env-default:"/instance/connectionState"`
		Instance     string `yaml:"instance" env:"EVOLUTION_INSTANCE" env-default:""`
		AddressStyle string `yaml:"address_style" env:"WA_ADDRESS_STYLE" env-default:"number"`
	} `yaml:"evolution"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"b24relay"`
	} `yaml:"mongo"`
	SQLite struct {
		Path string `yaml:"path" env:"SQLITE_PATH" env-default:""`
	} `yaml:"sqlite"`
	Telegram struct {
		ApiKey  string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		AdminId int64  `yaml:"admin_id" env:"TELEGRAM_ADMIN_ID" env-default:"0"`
		BotName string `yaml:"bot_name" env:"TELEGRAM_BOT_NAME" env-default:"B24RelayBot"`
		Enabled bool   `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
	} `yaml:"telegram"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	once.Do(func() {
		conf, err := Load(path)
		if err != nil {
			log.Fatal(err)
		}
		instance = conf
	})
	return instance
}

// Load reads the YAML file when it exists; environment variables override it.
// Without a file only the environment is read.
func Load(path string) (*Config, error) {
	conf := &Config{}
	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, conf)
	} else {
		err = cleanenv.ReadEnv(conf)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("%s; %s", err, desc)
	}
	conf.Evolution.BaseURL = strings.TrimRight(conf.Evolution.BaseURL, "/")
	return conf, nil
}

// MissingFor lists the environment keys a relay direction cannot work without.
func (c *Config) MissingFor(direction string) []string {
	var missing []string
	add := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}
	switch direction {
	case DirectionToCrm:
		add(c.Bitrix.ConnectorID != "", "CONNECTOR_SEND_ID")
		add(c.Bitrix.ClientID != "", "B24_CLIENT_ID")
		add(c.Bitrix.ClientSecret != "", "B24_CLIENT_SECRET")
	case DirectionToGateway:
		add(c.Bitrix.ConnectorID != "", "CONNECTOR_SEND_ID")
		add(c.Evolution.BaseURL != "", "EVOLUTION_BASE_URL")
	}
	return missing
}

// Present reports which recognized settings are set, without their values.
func (c *Config) Present() map[string]bool {
	return map[string]bool{
		"EVOLUTION_BASE_URL":  c.Evolution.BaseURL != "",
		"EVOLUTION_TOKEN":     c.Evolution.Token != "",
		"EVOLUTION_SEND_PATH": c.Evolution.SendPath != "",
		"EVOLUTION_INSTANCE":  c.Evolution.Instance != "",
		"WA_ADDRESS_STYLE":    c.Evolution.AddressStyle != "",
		"B24_CLIENT_ID":       c.Bitrix.ClientID != "",
		"B24_CLIENT_SECRET":   c.Bitrix.ClientSecret != "",
		"B24_REFRESH_TOKEN":   c.Bitrix.RefreshToken != "",
		"B24_ACCESS_TOKEN":    c.Bitrix.AccessToken != "",
		"B24_ENDPOINT":        c.Bitrix.ClientEndpoint != "",
		"B24_PORTAL":          c.Bitrix.PortalDomain != "",
		"B24_LINE_ID":         c.Bitrix.LineID != "",
		"CONNECTOR_SEND_ID":   c.Bitrix.ConnectorID != "",
		"WEBHOOK_SECRET":      c.Listen.WebhookSecret != "",
		"PUBLIC_URL":          c.Listen.PublicURL != "",
	}
}
