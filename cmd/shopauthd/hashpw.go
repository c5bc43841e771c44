package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/shopauth/password"
)

func newHashPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash",
		Long:  "Hashes with the configured argon2id cost, for seeding accounts by hand.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			secret := strings.TrimRight(line, "\r\n")
			if secret == "" {
				return errors.New("empty password")
			}

			engineCfg, err := a.cfg.Engine()
			if err != nil {
				return err
			}
			h, err := password.NewArgon2(password.Config{
				Memory:           engineCfg.Password.Memory,
				Time:             engineCfg.Password.Time,
				Parallelism:      engineCfg.Password.Parallelism,
				SaltLength:       engineCfg.Password.SaltLength,
				KeyLength:        engineCfg.Password.KeyLength,
				MaxPasswordBytes: engineCfg.Password.MaxPasswordBytes,
			})
			if err != nil {
				return err
			}
			hash, err := h.Hash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
