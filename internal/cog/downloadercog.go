package cog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/downloader"
	"rookbot/internal/util"

	"github.com/bwmarrin/discordgo"
)

// Git and pip can be slow; bound each downloader operation.
const downloaderTimeout = 5 * time.Minute

// DownloaderCog manages cog repositories and installed cogs. Every command
// is restricted to the bot owner.
type DownloaderCog struct {
	Session    *discordgo.Session
	Downloader *downloader.Downloader
}

func (d *DownloaderCog) Name() string {
	return "DownloaderCog"
}

func (d *DownloaderCog) Init() error {
	registerOnReady(d.Session, d.Name(), d.commands())
	d.Session.AddHandler(d.handleInteraction)

	config.Logger.Infoln(d.Name(), "initialized!")
	return nil
}

func (d *DownloaderCog) commands() []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "repo",
			Description:              "Manage cog repositories",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add",
					Description: "Add a cog repository",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Repository name", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Git clone URL", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "branch", Description: "Branch to track"},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delete",
					Description: "Remove a cog repository",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Repository name", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list",
					Description: "List added repositories",
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "update",
					Description: "Pull all repositories",
				},
			},
		},
		{
			Name:                     "cog",
			Description:              "Manage installed cogs",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "install",
					Description: "Install cogs from a repository",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "repo", Description: "Repository name", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "cogs", Description: "Cog names, space separated", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "uninstall",
					Description: "Uninstall cogs",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "cogs", Description: "Cog names, space separated", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list",
					Description: "List cogs available in a repository",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "repo", Description: "Repository name", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "update",
					Description: "Update installed cogs",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "cogs", Description: "Cog names, space separated; empty for all"},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "pin",
					Description: "Pin a cog so updates skip it",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "cog", Description: "Cog name", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unpin",
					Description: "Unpin a cog",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "cog", Description: "Cog name", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "checkforupdates",
					Description: "Check which installed cogs have updates",
				},
			},
		},
	}
}

func invokerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (d *DownloaderCog) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	if data.Name != "repo" && data.Name != "cog" {
		return
	}

	if !util.IsBotOwner(invokerID(i)) {
		_ = discord.RespondEphemeral(s, i.Interaction, "Only the bot owner can use this command.")
		return
	}

	if err := discord.Defer(s, i.Interaction); err != nil {
		config.Logger.Errorln("Failed to defer downloader response:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloaderTimeout)
	defer cancel()

	sub, opts := subcommand(data)

	var reply string
	if data.Name == "repo" {
		reply = d.handleRepo(ctx, sub, opts)
	} else {
		reply = d.handleCog(ctx, sub, opts)
	}
	if reply == "" {
		return
	}
	_ = discord.FollowUpText(s, i.Interaction, reply)
}

func (d *DownloaderCog) handleRepo(ctx context.Context, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) string {
	repos := d.Downloader.Repos()

	switch sub {
	case "add":
		name := stringOption(opts, "name")
		url := stringOption(opts, "url")
		branch := stringOption(opts, "branch")
		if _, err := repos.Add(ctx, name, url, branch); err != nil {
			return fmt.Sprintf("Failed to add the repo: %v", err)
		}
		return fmt.Sprintf("Repo `%s` added.", name)

	case "delete":
		name := stringOption(opts, "name")
		if err := repos.Remove(name); err != nil {
			return fmt.Sprintf("Failed to remove the repo: %v", err)
		}
		return fmt.Sprintf("Repo `%s` removed. Installed cogs from it are no longer updatable.", name)

	case "list":
		all := repos.All()
		if len(all) == 0 {
			return "No repos have been added."
		}
		var sb strings.Builder
		for _, repo := range all {
			fmt.Fprintf(&sb, "`%s` — %s", repo.Name(), repo.URL())
			if repo.Branch() != "" {
				fmt.Fprintf(&sb, " (%s)", repo.Branch())
			}
			sb.WriteString("\n")
		}
		return sb.String()

	case "update":
		updated, failed, err := repos.UpdateRepos(ctx, repos.All())
		if err != nil {
			return fmt.Sprintf("Failed to update repos: %v", err)
		}
		reply := fmt.Sprintf("Updated %d repo(s).", len(updated))
		if len(failed) > 0 {
			reply += fmt.Sprintf(" Failed: %s.", strings.Join(failed, ", "))
		}
		return reply
	}
	return ""
}

func (d *DownloaderCog) handleCog(ctx context.Context, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) string {
	switch sub {
	case "install":
		repoName := stringOption(opts, "repo")
		names := strings.Fields(stringOption(opts, "cogs"))
		repo, ok := d.Downloader.Repos().Get(repoName)
		if !ok {
			return fmt.Sprintf("There is no repo named `%s`.", repoName)
		}
		result, err := d.Downloader.InstallNewCogs(ctx, repo, names)
		if err != nil {
			return fmt.Sprintf("Installation failed: %v", err)
		}
		return installReport(result)

	case "uninstall":
		names := strings.Fields(stringOption(opts, "cogs"))
		removed, notInstalled, err := d.Downloader.UninstallCogs(names)
		if err != nil {
			return fmt.Sprintf("Uninstall failed: %v", err)
		}
		var parts []string
		if len(removed) > 0 {
			parts = append(parts, fmt.Sprintf("Uninstalled: %s. Restart the bot to unload them.", strings.Join(removed, ", ")))
		}
		if len(notInstalled) > 0 {
			parts = append(parts, fmt.Sprintf("Not installed: %s.", strings.Join(notInstalled, ", ")))
		}
		return strings.Join(parts, "\n")

	case "list":
		repoName := stringOption(opts, "repo")
		repo, ok := d.Downloader.Repos().Get(repoName)
		if !ok {
			return fmt.Sprintf("There is no repo named `%s`.", repoName)
		}
		cogs, err := repo.AvailableCogs()
		if err != nil {
			return fmt.Sprintf("Failed to list cogs: %v", err)
		}
		if len(cogs) == 0 {
			return "That repo has no cogs."
		}
		var sb strings.Builder
		for _, cog := range cogs {
			fmt.Fprintf(&sb, "`%s` — %s\n", cog.Name, cog.Description)
		}
		return sb.String()

	case "update":
		cogs, reply := d.cogsByName(stringOption(opts, "cogs"))
		if reply != "" {
			return reply
		}
		result, err := d.Downloader.Update(ctx, cogs)
		if err != nil {
			return fmt.Sprintf("Update failed: %v", err)
		}
		return updateReport(result)

	case "pin":
		name := stringOption(opts, "cog")
		if err := d.Downloader.SetPinned(name, true); err != nil {
			return fmt.Sprintf("Failed to pin: %v", err)
		}
		return fmt.Sprintf("Pinned `%s`; updates will skip it.", name)

	case "unpin":
		name := stringOption(opts, "cog")
		if err := d.Downloader.SetPinned(name, false); err != nil {
			return fmt.Sprintf("Failed to unpin: %v", err)
		}
		return fmt.Sprintf("Unpinned `%s`.", name)

	case "checkforupdates":
		repos := d.Downloader.Repos()
		if _, failed, err := repos.UpdateRepos(ctx, repos.All()); err != nil {
			return fmt.Sprintf("Failed to update repos: %v", err)
		} else if len(failed) > 0 {
			config.Logger.Warnln("Repos failed to update during check:", failed)
		}

		installed, err := d.Downloader.InstalledCogs()
		if err != nil {
			return fmt.Sprintf("Failed to read the installed cogs: %v", err)
		}
		cogsToUpdate, libsToUpdate, err := d.Downloader.AvailableUpdates(ctx, installed)
		if err != nil {
			return fmt.Sprintf("Failed to check for updates: %v", err)
		}
		if len(cogsToUpdate) == 0 && len(libsToUpdate) == 0 {
			return "All installed cogs are up to date."
		}
		var parts []string
		if len(cogsToUpdate) > 0 {
			parts = append(parts, fmt.Sprintf("Cogs with updates: %s.", installableNames(cogsToUpdate)))
		}
		if len(libsToUpdate) > 0 {
			parts = append(parts, fmt.Sprintf("Libraries with updates: %s.", installableNames(libsToUpdate)))
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// cogsByName resolves a space separated list of installed cog names; an
// empty list means every installed cog.
func (d *DownloaderCog) cogsByName(raw string) ([]*downloader.InstalledModule, string) {
	names := strings.Fields(raw)
	if len(names) == 0 {
		return nil, ""
	}

	var cogs []*downloader.InstalledModule
	var missing []string
	for _, name := range names {
		module, ok, err := d.Downloader.IsInstalled(name)
		if err != nil {
			return nil, fmt.Sprintf("Failed to read the installed cogs: %v", err)
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		cogs = append(cogs, module)
	}
	if len(missing) > 0 {
		return nil, fmt.Sprintf("Not installed: %s.", strings.Join(missing, ", "))
	}
	return cogs, ""
}

func installableNames(modules []*downloader.Installable) string {
	names := make([]string, len(modules))
	for i, module := range modules {
		names[i] = module.Name
	}
	return strings.Join(names, ", ")
}

func installReport(result *downloader.InstallResult) string {
	var parts []string
	if len(result.Installed) > 0 {
		parts = append(parts, fmt.Sprintf("Installed: %s.\nRestart the bot to load the new cogs.", downloader.ModuleList(result.Installed)))
	}
	if len(result.AlreadyInstalled) > 0 {
		parts = append(parts, fmt.Sprintf("Already installed: %s.", strings.Join(result.AlreadyInstalled, ", ")))
	}
	if len(result.Unavailable) > 0 {
		parts = append(parts, fmt.Sprintf("Not found in that repo: %s.", strings.Join(result.Unavailable, ", ")))
	}
	if len(result.NameConflicts) > 0 {
		parts = append(parts, fmt.Sprintf("Name conflicts with cogs from other repos: %s.", strings.Join(result.NameConflicts, ", ")))
	}
	if len(result.WrongVersion) > 0 {
		parts = append(parts, fmt.Sprintf("Require a newer bot version: %s.", strings.Join(result.WrongVersion, ", ")))
	}
	if len(result.FailedRequirements) > 0 {
		parts = append(parts, fmt.Sprintf("Failed requirements, nothing was installed: %s.", strings.Join(result.FailedRequirements, ", ")))
	}
	if len(result.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("Failed to install: %s.", strings.Join(result.Failed, ", ")))
	}
	if len(parts) == 0 {
		return "Nothing to install."
	}
	return strings.Join(parts, "\n")
}

func updateReport(result *downloader.UpdateResult) string {
	var parts []string
	if len(result.UpdatedCogs) > 0 {
		parts = append(parts, fmt.Sprintf("Updated cogs: %s.", strings.Join(result.UpdatedCogs, ", ")))
	}
	if len(result.UpdatedLibraries) > 0 {
		parts = append(parts, fmt.Sprintf("Updated libraries: %s.", strings.Join(result.UpdatedLibraries, ", ")))
	}
	if len(result.FailedRepos) > 0 {
		parts = append(parts, fmt.Sprintf("Repos that failed to update: %s.", strings.Join(result.FailedRepos, ", ")))
	}
	if len(result.FailedRequirements) > 0 {
		parts = append(parts, fmt.Sprintf("Failed requirements, update aborted: %s.", strings.Join(result.FailedRequirements, ", ")))
	}
	if len(result.FailedCogs) > 0 {
		parts = append(parts, fmt.Sprintf("Cogs that failed to update: %s.", strings.Join(result.FailedCogs, ", ")))
	}
	if len(result.FailedLibraries) > 0 {
		parts = append(parts, fmt.Sprintf("Libraries that failed to update: %s.", strings.Join(result.FailedLibraries, ", ")))
	}
	if len(parts) == 0 {
		return "All installed cogs are up to date."
	}
	parts = append(parts, "Restart the bot to load the updated modules.")
	return strings.Join(parts, "\n")
}
