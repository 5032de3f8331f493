package cog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rookbot/internal/bank"
	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/store"

	"github.com/bwmarrin/discordgo"
)

// EconomyCog hands out currency and moves it between members.
type EconomyCog struct {
	Session *discordgo.Session
	Store   *store.Store
	Bank    *bank.Bank

	conf *store.Conf
}

func (e *EconomyCog) Name() string {
	return "EconomyCog"
}

func (e *EconomyCog) Init() error {
	e.conf = e.Store.GetConf("Economy")
	e.conf.RegisterGuild(map[string]interface{}{
		"payday_amount":   120,
		"payday_cooldown": 300,
	})
	e.conf.RegisterMember(map[string]interface{}{
		"next_payday": 0,
	})

	registerOnReady(e.Session, e.Name(), e.commands())
	e.Session.AddHandler(e.handleInteraction)

	config.Logger.Infoln(e.Name(), "initialized!")
	return nil
}

func (e *EconomyCog) commands() []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:        "balance",
			Description: "Show your balance or someone else's",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to check"},
			},
		},
		{
			Name:        "payday",
			Description: "Collect your pay",
		},
		{
			Name:        "pay",
			Description: "Send currency to another member",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to pay", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Amount to send", Required: true},
			},
		},
		{
			Name:        "leaderboard",
			Description: "Show the richest members",
		},
		{
			Name:                     "economyset",
			Description:              "Manage economy settings",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "paydayamount",
					Description: "Set the amount paid out by payday",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Payout amount", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "paydaycooldown",
					Description: "Set the payday cooldown in seconds",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "seconds", Description: "Cooldown in seconds", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "setbalance",
					Description: "Set a member's balance",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "New balance", Required: true},
					},
				},
			},
		},
	}
}

func (e *EconomyCog) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "balance", "payday", "pay", "leaderboard", "economyset":
	default:
		return
	}

	if i.GuildID == "" || i.Member == nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	switch data.Name {
	case "balance":
		e.handleBalance(s, i, data)
	case "payday":
		e.handlePayday(s, i)
	case "pay":
		e.handlePay(s, i, data)
	case "leaderboard":
		e.handleLeaderboard(s, i)
	case "economyset":
		e.handleEconomyset(s, i, data)
	}
}

func (e *EconomyCog) handleBalance(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := optionMap(data.Options)
	target := userOption(s, opts, "user")
	if target == nil {
		target = i.Member.User
	}

	balance, err := e.Bank.Balance(i.GuildID, target.ID)
	if err != nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to look up the balance.")
		return
	}

	currency := e.Bank.CurrencyName(i.GuildID)
	if target.ID == i.Member.User.ID {
		_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Your balance is %d %s.", balance, currency))
		return
	}
	_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("%s's balance is %d %s.", target.Username, balance, currency))
}

func (e *EconomyCog) handlePayday(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := i.Member.User.ID
	ms := e.conf.Member(i.GuildID, userID)

	var nextPayday int64
	_ = ms.Get("next_payday", &nextPayday)

	now := time.Now().Unix()
	if now < nextPayday {
		wait := time.Duration(nextPayday-now) * time.Second
		_ = discord.RespondEphemeral(s, i.Interaction,
			fmt.Sprintf("Too soon. You'll have to wait %s before you can collect your pay again.", wait))
		return
	}

	gs := e.conf.Guild(i.GuildID)
	var amount, cooldown int64
	_ = gs.Get("payday_amount", &amount)
	_ = gs.Get("payday_cooldown", &cooldown)

	balance, err := e.Bank.Deposit(i.GuildID, userID, amount)
	if err != nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to deposit your pay.")
		return
	}
	if err := ms.Set("next_payday", now+cooldown); err != nil {
		config.Logger.Errorln("Failed to save payday timestamp:", err)
	}

	currency := e.Bank.CurrencyName(i.GuildID)
	_ = discord.RespondText(s, i.Interaction,
		fmt.Sprintf("Here, take some %s. Enjoy! (+%d %s!)\n\nYou currently have %d %s.", currency, amount, currency, balance, currency))
}

func (e *EconomyCog) handlePay(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := optionMap(data.Options)
	target := userOption(s, opts, "user")
	amount := intOption(opts, "amount")
	from := i.Member.User

	if target.ID == from.ID {
		_ = discord.RespondEphemeral(s, i.Interaction, "You can't pay yourself.")
		return
	}
	if target.Bot {
		_ = discord.RespondEphemeral(s, i.Interaction, "You can't pay bots.")
		return
	}
	if amount <= 0 {
		_ = discord.RespondEphemeral(s, i.Interaction, "The amount must be positive.")
		return
	}

	if err := e.Bank.Transfer(i.GuildID, from.ID, target.ID, amount); err != nil {
		if errors.Is(err, bank.ErrInsufficientFunds) {
			_ = discord.RespondEphemeral(s, i.Interaction, "You don't have that much money.")
			return
		}
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to transfer the money.")
		return
	}

	currency := e.Bank.CurrencyName(i.GuildID)
	_ = discord.RespondText(s, i.Interaction,
		fmt.Sprintf("%s sent %d %s to %s.", from.Mention(), amount, currency, target.Mention()))
}

func (e *EconomyCog) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	accounts, err := e.Bank.Leaderboard(i.GuildID, 10)
	if err != nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to build the leaderboard.")
		return
	}
	if len(accounts) == 0 {
		_ = discord.RespondText(s, i.Interaction, "There are no accounts in the bank yet.")
		return
	}

	currency := e.Bank.CurrencyName(i.GuildID)
	var sb strings.Builder
	for rank, account := range accounts {
		fmt.Fprintf(&sb, "%d. <@%s> — %d %s\n", rank+1, account.UserID, account.Balance, currency)
	}

	_ = discord.RespondEmbed(s, i.Interaction, &discordgo.MessageEmbed{
		Title:       e.Bank.BankName(i.GuildID),
		Description: sb.String(),
		Color:       0x2ECC71,
	})
}

func (e *EconomyCog) handleEconomyset(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub, opts := subcommand(data)
	gs := e.conf.Guild(i.GuildID)

	switch sub {
	case "paydayamount":
		amount := intOption(opts, "amount")
		if amount <= 0 {
			_ = discord.RespondEphemeral(s, i.Interaction, "The amount must be positive.")
			return
		}
		if err := gs.Set("payday_amount", amount); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		currency := e.Bank.CurrencyName(i.GuildID)
		_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Payday will now give %d %s.", amount, currency))

	case "paydaycooldown":
		seconds := intOption(opts, "seconds")
		if seconds <= 0 {
			_ = discord.RespondEphemeral(s, i.Interaction, "The cooldown must be positive.")
			return
		}
		if err := gs.Set("payday_cooldown", seconds); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Payday cooldown set to %d seconds.", seconds))

	case "setbalance":
		target := userOption(s, opts, "user")
		amount := intOption(opts, "amount")
		if amount < 0 {
			_ = discord.RespondEphemeral(s, i.Interaction, "The balance can't be negative.")
			return
		}
		if err := e.Bank.Set(i.GuildID, target.ID, amount); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to set the balance.")
			return
		}
		currency := e.Bank.CurrencyName(i.GuildID)
		_ = discord.RespondText(s, i.Interaction,
			fmt.Sprintf("%s's balance is now %d %s.", target.Username, amount, currency))
	}
}
