// Command identity-stub runs an in-memory identity backend for local
// gateway development. It speaks the same HTTP surface as the production
// backend and seeds one owner account.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rentfolio/auth-gateway/internal/config"
	"github.com/rentfolio/auth-gateway/token"
	"github.com/rentfolio/auth-gateway/upstream/upstreamtest"
	"github.com/rentfolio/auth-gateway/users"
)

const (
	defaultAddr  = ":5000"
	seedEmail    = "owner@rentfolio.dev"
	seedPassword = "Devpassword1"
	seedName     = "Dev Owner"
	addrEnvVar   = "IDENTITY_STUB_ADDR"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	c := config.New()
	tokens := token.New(token.NewHMACSigner(c.GetJWTSecret()),
		token.WithTokenExpiry(c.GetAccessTokenTTL(), c.GetRefreshTokenTTL()))

	stub := upstreamtest.New(tokens)
	if _, err := stub.AddAccount(seedName, seedEmail, seedPassword, users.RoleOwner); err != nil {
		log.Fatal().Err(err).Msg("seeding account")
	}

	addr := os.Getenv(addrEnvVar)
	if addr == "" {
		addr = defaultAddr
	}

	fmt.Printf("identity stub on %s (login %s / %s)\n", addr, seedEmail, seedPassword)
	if err := http.ListenAndServe(addr, stub); err != nil {
		log.Fatal().Err(err).Msg("identity stub stopped")
	}
}
