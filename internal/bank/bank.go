package bank

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"rookbot/internal/store"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank tracks per-guild member balances in the config store.
type Bank struct {
	mu   sync.Mutex
	conf *store.Conf
}

func New(s *store.Store) *Bank {
	conf := s.GetConf("Bank")
	conf.RegisterGuild(map[string]interface{}{
		"bank_name":       "Rook Bank",
		"currency":        "credits",
		"default_balance": int64(100),
	})
	return &Bank{conf: conf}
}

// Balance returns the member's balance, falling back to the guild's
// default (starting) balance for accounts that were never touched.
func (b *Bank) Balance(guildID, userID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(guildID, userID)
}

func (b *Bank) balance(guildID, userID string) (int64, error) {
	var bal *int64
	if err := b.conf.Member(guildID, userID).Get("balance", &bal); err != nil {
		return 0, err
	}
	if bal != nil {
		return *bal, nil
	}
	return b.DefaultBalance(guildID)
}

// Set overwrites the member's balance.
func (b *Bank) Set(guildID, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("balance cannot be negative: %d", amount)
	}
	return b.conf.Member(guildID, userID).Set("balance", amount)
}

// Deposit adds amount to the member's balance and returns the new balance.
func (b *Bank) Deposit(guildID, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, err := b.balance(guildID, userID)
	if err != nil {
		return 0, err
	}
	bal += amount
	return bal, b.conf.Member(guildID, userID).Set("balance", bal)
}

// Withdraw removes amount from the member's balance and returns the new
// balance. Fails with ErrInsufficientFunds when the account cannot cover it.
func (b *Bank) Withdraw(guildID, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("withdrawal amount must be positive: %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, err := b.balance(guildID, userID)
	if err != nil {
		return 0, err
	}
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	bal -= amount
	return bal, b.conf.Member(guildID, userID).Set("balance", bal)
}

// Transfer moves amount between two members of the same guild.
func (b *Bank) Transfer(guildID, fromID, toID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal, err := b.balance(guildID, fromID)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrInsufficientFunds
	}
	toBal, err := b.balance(guildID, toID)
	if err != nil {
		return err
	}
	if err := b.conf.Member(guildID, fromID).Set("balance", fromBal-amount); err != nil {
		return err
	}
	return b.conf.Member(guildID, toID).Set("balance", toBal+amount)
}

// Account is one leaderboard row.
type Account struct {
	UserID  string
	Balance int64
}

// Leaderboard returns up to top accounts of a guild, richest first.
func (b *Bank) Leaderboard(guildID string, top int) ([]Account, error) {
	members := b.conf.GuildMembers(guildID)

	accounts := make([]Account, 0, len(members))
	for uid := range members {
		bal, err := b.Balance(guildID, uid)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, Account{UserID: uid, Balance: bal})
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Balance != accounts[j].Balance {
			return accounts[i].Balance > accounts[j].Balance
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	if top > 0 && len(accounts) > top {
		accounts = accounts[:top]
	}
	return accounts, nil
}

// Wipe deletes every account in a guild.
func (b *Bank) Wipe(guildID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for uid := range b.conf.GuildMembers(guildID) {
		if err := b.conf.Member(guildID, uid).Clear(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bank) DefaultBalance(guildID string) (int64, error) {
	var def int64
	err := b.conf.Guild(guildID).Get("default_balance", &def)
	return def, err
}

func (b *Bank) SetDefaultBalance(guildID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("default balance cannot be negative: %d", amount)
	}
	return b.conf.Guild(guildID).Set("default_balance", amount)
}

func (b *Bank) CurrencyName(guildID string) string {
	var name string
	if err := b.conf.Guild(guildID).Get("currency", &name); err != nil || name == "" {
		return "credits"
	}
	return name
}

func (b *Bank) SetCurrencyName(guildID, name string) error {
	return b.conf.Guild(guildID).Set("currency", name)
}

func (b *Bank) BankName(guildID string) string {
	var name string
	if err := b.conf.Guild(guildID).Get("bank_name", &name); err != nil || name == "" {
		return "Rook Bank"
	}
	return name
}

func (b *Bank) SetBankName(guildID, name string) error {
	return b.conf.Guild(guildID).Set("bank_name", name)
}
