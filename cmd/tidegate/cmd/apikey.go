package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/solatis/tidegate/internal/core/auth"
	"github.com/solatis/tidegate/internal/core/config"
	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for privileged callers",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint an API key for a site",
	Long: `Mints a key signed with a configured HMAC secret and stores its hash.
The key is printed once and cannot be recovered.`,
	RunE: runAPIKeyCreate,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCreateCmd.Flags().String("site", "", "site id the key authenticates as")
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret id (required when several are configured)")
	_ = apikeyCreateCmd.MarkFlagRequired("site")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	site, _ := cmd.Flags().GetString("site")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, err = pickSecretID(secrets, secretID)
	if err != nil {
		return err
	}

	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	key, err := auth.NewAuthenticator(secrets, a.queries).Issue(ctx, site, secretID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

// pickSecretID returns requested if configured, or the only configured id.
func pickSecretID(secrets map[string][]byte, requested string) (string, error) {
	if len(secrets) == 0 {
		return "", fmt.Errorf("no HMAC secrets configured (set TG_HMAC_SECRET environment variable)")
	}
	if requested != "" {
		if _, ok := secrets[requested]; !ok {
			return "", fmt.Errorf("secret id %s not configured", requested)
		}
		return requested, nil
	}
	if len(secrets) > 1 {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return "", fmt.Errorf("several HMAC secrets configured, choose one with --secret-id: %v", ids)
	}
	for id := range secrets {
		return id, nil
	}
	return "", nil
}
