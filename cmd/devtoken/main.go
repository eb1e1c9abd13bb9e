// Command devtoken prints an access token for calling the API locally.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/config"
	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/validator"
)

func main() {
	employeeID := flag.String("employee", "", "employee id to put in the employee_id claim")
	role := flag.String("role", string(user.RoleEmployee), "role claim (owner, manager, employee)")
	userID := flag.String("user", "", "user id claim, defaults to the employee id")
	flag.Parse()

	if *employeeID == "" {
		fmt.Fprintln(os.Stderr, "-employee is required")
		os.Exit(2)
	}
	if !validator.IsInSlice(*role, user.RoleValues) {
		fmt.Fprintf(os.Stderr, "%v: %q\n", user.ErrInvalidRole, *role)
		os.Exit(2)
	}
	if *userID == "" {
		*userID = *employeeID
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	JWTService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if err != nil {
		slog.Error("Failed to init jwt", "error", err)
		os.Exit(1)
	}

	token, expiresAt, err := JWTService.GenerateAccessToken(*userID, *employeeID, user.Role(*role))
	if err != nil {
		slog.Error("Failed to generate token", "error", err)
		os.Exit(1)
	}

	fmt.Println(token)
	slog.Info("Token issued", "employee_id", *employeeID, "role", *role, "expires_at", time.Unix(expiresAt, 0).UTC().Format(time.RFC3339))
}
