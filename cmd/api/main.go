package main

import (
	"os"

	_ "orgadmin/api/swagger" // swagger docs
)

// @title           Organization Admin API
// @version         1.0
// @description     Multi-tenant administration: organizations, users, roles, permissions and the audit trail.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
