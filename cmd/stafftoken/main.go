// Command stafftoken mints a staff bearer token for the fulfillment API.
//
// Usage:
//
//	STAFF_TOKEN_SECRET=... stafftoken -email ops@embermill.co
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/embermillco/embermill/internal/auth"
)

func main() {
	email := flag.String("email", "", "staff member email to embed in the token")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "stafftoken: -email is required")
		os.Exit(2)
	}

	secret := os.Getenv("STAFF_TOKEN_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "stafftoken: STAFF_TOKEN_SECRET is not set")
		os.Exit(2)
	}

	token, err := auth.NewStaffAuth(secret).IssueToken(*email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stafftoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
