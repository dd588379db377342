package main

import (
	"fmt"
	"os"

	"freightflow/backend/internal/auth"
	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
)

// 签发开发用 Bearer Token
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: token <user-id> <tenant-id> <SHIPPER|CARRIER|DISPATCHER>")
		os.Exit(1)
	}

	userID := os.Args[1]
	tenantID := os.Args[2]

	role, err := domain.ParseRole(os.Args[3])
	if err != nil {
		fmt.Printf("Invalid role: %v\n", err)
		os.Exit(1)
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewResolver(cfg.Auth).Tokens().Issue(userID, tenantID, string(role))
	if err != nil {
		fmt.Printf("Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Token issued successfully!")
	fmt.Printf("User:    %s\n", userID)
	fmt.Printf("Tenant:  %s\n", tenantID)
	fmt.Printf("Role:    %s\n", role)
	fmt.Printf("Expires: %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("\nAuthorization: Bearer %s\n", token)
}
