package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/domain/models"
)

// sessionFromFlags builds the acting identity from --user/--email/--org,
// falling back to SAFEPAY_USER_ID, SAFEPAY_USER_EMAIL and SAFEPAY_ORG_ID.
func sessionFromFlags(cmd *cobra.Command) (models.Session, error) {
	session := models.Session{
		UserID:         flagOrEnv(cmd, "user", "SAFEPAY_USER_ID"),
		Email:          flagOrEnv(cmd, "email", "SAFEPAY_USER_EMAIL"),
		OrganizationID: flagOrEnv(cmd, "org", "SAFEPAY_ORG_ID"),
	}
	if session.UserID == "" && session.Email == "" {
		return session, fmt.Errorf("no acting user: pass --user or --email")
	}
	return session, nil
}

func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if f := cmd.Flag(flag); f != nil && f.Value.String() != "" {
		return strings.TrimSpace(f.Value.String())
	}
	return strings.TrimSpace(os.Getenv(env))
}

// parseRef parses "payable:<id>" or "invoice:<id>". A bare id is a payable.
func parseRef(arg string) (models.DocumentRef, error) {
	kind, id, found := strings.Cut(arg, ":")
	if !found {
		return models.DocumentRef{Kind: models.DocumentPayable, ID: arg}, nil
	}
	switch models.DocumentKind(strings.ToLower(kind)) {
	case models.DocumentPayable, models.DocumentInvoice:
	default:
		return models.DocumentRef{}, fmt.Errorf("unknown document kind %q (use payable or invoice)", kind)
	}
	if id == "" {
		return models.DocumentRef{}, fmt.Errorf("missing document id in %q", arg)
	}
	return models.DocumentRef{Kind: models.DocumentKind(strings.ToLower(kind)), ID: id}, nil
}

func parseRefs(args []string) ([]models.DocumentRef, error) {
	refs := make([]models.DocumentRef, 0, len(args))
	for _, arg := range args {
		ref, err := parseRef(arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func equalFoldAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
