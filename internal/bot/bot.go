package bot

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rookbot/internal/bank"
	"rookbot/internal/cog"
	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/downloader"
	"rookbot/internal/modlog"
	"rookbot/internal/store"
)

// Version gates cogs whose manifests declare a minimum bot version.
const Version = "1.0.0"

func Run() {
	config.Load()

	st, err := store.Open(filepath.Join(config.Configuration.DataDir, "settings.json"))
	if err != nil {
		config.Logger.Fatal("Failed to open settings store: ", err)
	}

	if err := discord.Init(); err != nil {
		config.Logger.Fatal("Failed to initialize discord: ", err)
	}

	repos := downloader.NewRepoManager(st, filepath.Join(config.Configuration.DataDir, "repos"))
	if err := repos.Initialize(context.Background()); err != nil {
		config.Logger.Fatal("Failed to initialize cog repositories: ", err)
	}
	dl, err := downloader.New(st, repos, config.Configuration.DataDir, Version)
	if err != nil {
		config.Logger.Fatal("Failed to initialize the downloader: ", err)
	}

	ml := modlog.New(st, discord.Session)
	bk := bank.New(st)

	initCogs(st, ml, bk, dl)

	if err := discord.InitConnection(); err != nil {
		config.Logger.Fatal("Failed to connect to discord: ", err)
	}
	defer discord.Session.Close()

	config.Logger.Infoln("Bot is running.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
}

func initCogs(st *store.Store, ml *modlog.ModLog, bk *bank.Bank, dl *downloader.Downloader) {
	if discord.Session == nil {
		config.Logger.Panic("Tried to init cogs before initializing discord session")
	}

	cogList := []cog.Cog{
		&cog.WarningsCog{
			Session: discord.Session,
			Store:   st,
			ModLog:  ml,
		},
		&cog.AudioCog{
			ConfigName: "audio.json5",
			Session:    discord.Session,
			Store:      st,
		},
		&cog.EconomyCog{
			Session: discord.Session,
			Store:   st,
			Bank:    bk,
		},
		&cog.CleanupCog{
			Session: discord.Session,
		},
		&cog.CommandCog{
			ConfigName: "command.json5",
			Session:    discord.Session,
		},
		&cog.DownloaderCog{
			Session:    discord.Session,
			Downloader: dl,
		},
	}

	config.Logger.Infoln("Loading cogs ...")
	for _, c := range cogList {
		if err := c.Init(); err != nil {
			config.Logger.Fatal("Error initializing cog: ", c.Name(), err)
		}
	}
}
