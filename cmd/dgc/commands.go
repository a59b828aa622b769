package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/M3kH/dgc/cidutil"
	"github.com/M3kH/dgc/hcert"
)

func newSignCommand(s *streams) *cobra.Command {
	var certPath, keyPath string
	var store archiveFlags
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign JSON claims from stdin and print an HC1 token",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if certPath == "" || keyPath == "" {
				return usagef("sign requires --certificate and --private-key")
			}
			cert, err := os.ReadFile(certPath)
			if err != nil {
				return err
			}
			key, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			body, err := s.readInput("JSON claims")
			if err != nil {
				return err
			}
			claims, err := hcert.ParseJSON(body)
			if err != nil {
				return err
			}
			token, err := hcert.Encode(claims, cert, key)
			if err != nil {
				return err
			}

			if store.configured() {
				a, closeFn, err := store.open()
				if err != nil {
					return err
				}
				defer closeFn()
				id, err := a.Store(token)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.errOut, "archived %s\n", id)
			}

			// No trailing newline: stdout is exactly the token.
			_, err = fmt.Fprint(s.out, token)
			return err
		},
	}
	cmd.Flags().SetNormalizeFunc(flagAliases)
	cmd.Flags().StringVarP(&certPath, "certificate", "c", "", "issuer certificate (PEM or DER)")
	cmd.Flags().StringVarP(&keyPath, "private-key", "p", "", "signing key (PEM)")
	store.register(cmd)
	return cmd
}

func newVerifyCommand(s *streams) *cobra.Command {
	var certPath string
	var lenient bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an HC1 token from stdin and print its claims as JSON",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if certPath == "" {
				return usagef("verify requires --certificate")
			}
			cert, err := os.ReadFile(certPath)
			if err != nil {
				return err
			}
			token, err := s.readToken()
			if err != nil {
				return err
			}
			decode := hcert.Decode
			if lenient {
				decode = hcert.DecodeLenient
			}
			claims, err := decode(token, cert)
			if err != nil {
				return describe(err)
			}
			return printJSON(s, claims)
		},
	}
	cmd.Flags().StringVarP(&certPath, "certificate", "c", "", "issuer certificate (PEM or DER)")
	cmd.Flags().BoolVar(&lenient, "lenient-prefix", false, "skip the first four characters without checking for HC1:")
	return cmd
}

func newInspectCommand(s *streams) *cobra.Command {
	var lenient bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the key identifier, algorithm and archive CID of a token without verifying it",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := s.readToken()
			if err != nil {
				return err
			}
			unpack := hcert.Unpack
			if lenient {
				unpack = hcert.UnpackLenient
			}
			envelope, err := unpack(token)
			if err != nil {
				return describe(err)
			}
			info, err := hcert.Inspect(envelope)
			if err != nil {
				return describe(err)
			}
			id, err := cidutil.EnvelopeCID(envelope)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "kid: %s\n", hex.EncodeToString(info.KeyID))
			fmt.Fprintf(s.out, "alg: %s\n", info.AlgorithmName())
			fmt.Fprintf(s.out, "cid: %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&lenient, "lenient-prefix", false, "skip the first four characters without checking for HC1:")
	return cmd
}

func newArchiveCommand(s *streams) *cobra.Command {
	var store archiveFlags
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store and retrieve signed envelopes by CID",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usagef("archive requires a subcommand: put, get or verify")
		},
	}
	store.registerPersistent(cmd)

	put := &cobra.Command{
		Use:   "put",
		Short: "Archive the envelope of a token read from stdin and print its CID",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := store.open()
			if err != nil {
				return err
			}
			defer closeFn()
			token, err := s.readToken()
			if err != nil {
				return err
			}
			id, err := a.Store(token)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(s.out, id)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Print the token of an archived envelope",
		Args:  argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := store.open()
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := cidutil.Parse(args[0])
			if err != nil {
				return usageError{err}
			}
			token, err := a.Load(id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(s.out, token)
			return err
		},
	}

	var certPath string
	verify := &cobra.Command{
		Use:   "verify <cid>",
		Short: "Verify an archived envelope and print its claims as JSON",
		Args:  argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if certPath == "" {
				return usagef("archive verify requires --certificate")
			}
			cert, err := os.ReadFile(certPath)
			if err != nil {
				return err
			}
			a, closeFn, err := store.open()
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := cidutil.Parse(args[0])
			if err != nil {
				return usageError{err}
			}
			claims, err := a.Verify(id, cert)
			if err != nil {
				return describe(err)
			}
			return printJSON(s, claims)
		},
	}
	verify.Flags().StringVarP(&certPath, "certificate", "c", "", "issuer certificate (PEM or DER)")

	cmd.AddCommand(put, get, verify)
	return cmd
}

// flagAliases accepts the camel-case spelling older scripts pass.
func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "privateKey" {
		name = "private-key"
	}
	return pflag.NormalizedName(name)
}

func printJSON(s *streams, claims any) error {
	b, err := hcert.FormatJSON(claims)
	if err != nil {
		return err
	}
	_, err = s.out.Write(append(b, '\n'))
	return err
}

// describe prefixes pipeline errors with their rule so scripts can grep for it.
func describe(err error) error {
	if rule := hcert.RuleID(err); rule != "" {
		return fmt.Errorf("%s [%s]: %w", hcert.KindOf(err), rule, err)
	}
	return err
}
