package bootstrap

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// PrintMemberResult displays a created member. A generated password is shown
// once and never logged.
func PrintMemberResult(w io.Writer, result *MemberResult) {
	if result == nil {
		return
	}

	printSectionHeader(w, "MEMBER CREATED")
	fmt.Fprintf(w, "  Identity ID:  %s\n", result.Identity.ID)
	if result.Identity.Email != "" {
		fmt.Fprintf(w, "  Email:        %s\n", result.Identity.Email)
	}
	if result.Identity.Username != "" {
		fmt.Fprintf(w, "  Username:     %s\n", result.Identity.Username)
	}
	if result.PasswordGenerated {
		fmt.Fprintf(w, "  Password:     %s\n", result.Password)
		fmt.Fprintln(w, "\n  THIS PASSWORD WILL NOT BE DISPLAYED AGAIN - SAVE IT NOW!")
	}
	printSectionFooter(w)
}

// PrintTempToken displays an issued temp token and when it stops working.
func PrintTempToken(w io.Writer, result *TempTokenResult) {
	if result == nil {
		return
	}

	printSectionHeader(w, "TEMP TOKEN ISSUED")
	fmt.Fprintf(w, "  Identity ID:  %s\n", result.Identity.ID)
	fmt.Fprintf(w, "  Token:        %s\n", result.Token)
	if result.ExpiresAt.IsZero() {
		fmt.Fprintln(w, "  Expires:      never")
	} else {
		fmt.Fprintf(w, "  Expires:      %s\n", result.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w, "\n  The token is replaced by the next one issued for this member.")
	printSectionFooter(w)
}

func printSectionHeader(w io.Writer, title string) {
	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", border, title, border)
}

func printSectionFooter(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 80))
}
