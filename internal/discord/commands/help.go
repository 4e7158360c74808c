package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/yomiage/internal/discord"
)

// HelpCommand lists the usage of every registered command.
type HelpCommand struct {
	router *discord.CommandRouter
	prefix string
}

// NewHelpCommand creates a HelpCommand reading usages from router.
func NewHelpCommand(router *discord.CommandRouter, prefix string) *HelpCommand {
	return &HelpCommand{router: router, prefix: prefix}
}

// Register registers help with the router.
func (hc *HelpCommand) Register(router *discord.CommandRouter) {
	router.RegisterCommand("help", "help: このヘルプを表示", hc.handle)
}

func (hc *HelpCommand) handle(_ context.Context, r *discord.Request) {
	var b strings.Builder
	b.WriteString(";使い方:")
	for _, u := range hc.router.Usage() {
		fmt.Fprintf(&b, "\n;  %s%s", hc.prefix, u)
	}
	r.Reply(b.String())
}
