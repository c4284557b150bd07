package cmd

import (
	"errors"
	"fmt"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/sekia-ai/calremind/internal/secrets"
)

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Encrypt config values with age",
	}

	cmd.AddCommand(newSecretsKeygenCmd())
	cmd.AddCommand(newSecretsEncryptCmd())
	cmd.AddCommand(newSecretsDecryptCmd())

	return cmd
}

func newSecretsKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the age key used to open ENC[...] config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = secrets.DefaultKeyPath()
			}
			id, err := secrets.GenerateKey(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key file written to: %s\nPublic key: %s\n", output, id.Recipient())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: ~/.config/calremind/age.key)")
	return cmd
}

func newSecretsEncryptCmd() *cobra.Command {
	var recipientKey string

	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Print the ENC[...] form of a value for calremind.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, err := encryptRecipient(recipientKey)
			if err != nil {
				return err
			}
			sealed, err := secrets.Encrypt(args[0], recipient)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientKey, "recipient", "", "age public key (default: derived from the resolved identity)")
	return cmd
}

func encryptRecipient(raw string) (age.Recipient, error) {
	if raw != "" {
		r, err := secrets.ParseRecipient(raw)
		if err != nil {
			return nil, fmt.Errorf("parse recipient: %w", err)
		}
		return r, nil
	}
	ids, err := secrets.Resolve(nil)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("no age key found; run 'calremindctl secrets keygen' first or pass --recipient")
	}
	x, ok := ids[0].(*age.X25519Identity)
	if !ok {
		return nil, errors.New("resolved identity is not X25519; pass --recipient")
	}
	return x.Recipient(), nil
}

func newSecretsDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <ENC[...]>",
		Short: "Open an ENC[...] value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := secrets.Resolve(nil)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no age identity found; set %s or %s, or create %s",
					secrets.EnvAgeKey, secrets.EnvAgeKeyFile, secrets.DefaultKeyPath())
			}
			plain, err := secrets.Decrypt(args[0], ids...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain)
			return nil
		},
	}
}
