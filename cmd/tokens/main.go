// Package main is a small CLI for minting owner and overlay tokens.
// The overlay token is what gets embedded in the browser-source URL in
// streaming software; the owner token is used by the dashboard and the
// companion agent.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/auth"
)

func main() {
	userID := flag.String("user", "", "user ID to mint tokens for (required)")
	scope := flag.String("scope", auth.ScopeOwner, "token scope: owner or overlay")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("PulseRelay Token Minter")
		fmt.Println()
		fmt.Println("Usage: tokens -user <id> [-scope owner|overlay]")
		fmt.Println()
		fmt.Println("The signing secret is read from the JWT_SECRET environment variable.")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(secret)

	var (
		token string
		err   error
	)
	switch *scope {
	case auth.ScopeOwner:
		token, err = jwtService.GenerateOwnerToken(*userID)
	case auth.ScopeOverlay:
		token, err = jwtService.GenerateOverlayToken(*userID)
	default:
		fmt.Fprintf(os.Stderr, "unknown scope %q: want owner or overlay\n", *scope)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to generate token:", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
