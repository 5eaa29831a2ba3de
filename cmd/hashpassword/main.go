// cmd/hashpassword/main.go prints a bcrypt hash for seeding accounts by hand
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/pkg/auth"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: hashpassword <password>")
	}
	password := os.Args[1]

	cfg := &config.Config{Security: config.SecurityConfig{BcryptCost: 12}}
	pm := auth.NewPasswordManager(cfg)

	if err := pm.ValidatePassword(password); err != nil {
		log.Fatalf("Password rejected: %v", err)
	}

	hash, err := pm.HashPassword(password)
	if err != nil {
		log.Fatalf("Error generating hash: %v", err)
	}
	if err := pm.VerifyPassword(password, hash); err != nil {
		log.Fatalf("Hash verification failed: %v", err)
	}

	fmt.Println(hash)
}
