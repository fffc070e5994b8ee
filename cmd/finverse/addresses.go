package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finverse/finverse/pkg/contracts"
)

func newAddressesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Read or record deployed contract addresses",
	}
	cmd.PersistentFlags().StringP("file", "f", "", "Address map file (overrides contracts.address_file)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the address map",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				book, err := openAddressBook(cmd)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(book.Addresses())
			},
		},
		&cobra.Command{
			Use:   "get <name>",
			Short: "Print the address of one contract",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				book, err := openAddressBook(cmd)
				if err != nil {
					return err
				}
				addr, err := book.RequireAddress(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), addr)
				return err
			},
		},
		&cobra.Command{
			Use:   "set <name> <address>",
			Short: "Record the address of a freshly deployed contract",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				book, err := openAddressBook(cmd)
				if err != nil {
					return err
				}
				if err := book.Set(args[0], args[1]); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s address saved to %s\n", args[0], book.Path())
				return err
			},
		},
	)
	return cmd
}

func openAddressBook(cmd *cobra.Command) (*contracts.AddressBook, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if f, _ := cmd.Flags().GetString("file"); f != "" {
		cfg.Contracts.AddressFile = f
	}
	return contracts.LoadAddressBook(cfg.Contracts.AddressFile, newLogger(cmd, cfg))
}
