package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/zap"
)

var Logger *zap.SugaredLogger

type configuration struct {
	BotStatus string
	OwnerID   string

	DiscordToken string

	DataDir   string
	ConfigDir string
}

var Configuration *configuration

func Load() {
	slogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Logger = slogger.Sugar()

	err = godotenv.Load()
	if err != nil {
		Logger.Warnln("Couldnt load file .env, using process environment")
	}

	Configuration = &configuration{
		BotStatus:    os.Getenv("BOT_STATUS"),
		OwnerID:      os.Getenv("BOT_OWNER_ID"),
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		DataDir:      envOr("BOT_DATA_DIR", "data"),
		ConfigDir:    envOr("BOT_CONFIG_DIR", "configs"),
	}
}

// LoadConfig reads a JSON5 config file from the config dir into out.
func LoadConfig(name string, out interface{}) error {
	path := filepath.Join(Configuration.ConfigDir, name)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config %s: %w", name, err)
	}
	defer f.Close()

	if err := json5.NewDecoder(f).Decode(out); err != nil {
		return fmt.Errorf("parsing config %s: %w", name, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
