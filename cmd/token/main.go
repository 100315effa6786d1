// Command token mints an HS256 access token signed with JWT_SECRET so the
// API can be exercised without the identity provider.
//
//	go run ./cmd/token -user 42 -role USER
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/bookify-reservation/internal/middleware"
	"github.com/iliyamo/bookify-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	user := flag.Uint64("user", 0, "user id placed in the sub claim")
	role := flag.String("role", middleware.RoleUser, "USER, HOST or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	switch r := strings.ToUpper(*role); r {
	case middleware.RoleUser, middleware.RoleHost, middleware.RoleAdmin:
		*role = r
	default:
		log.Fatalf("unknown role %q", *role)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("missing required env var: JWT_SECRET")
	}
	tok, err := utils.NewAccessToken(secret, *user, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
