package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/repo"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

func newVerifyCmd() *cobra.Command {
	var signatures bool
	var allowedSigners string
	var requireSigned bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute commit hashes and check parents for every reachable commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			report, err := r.VerifyAll(ctx)
			if err != nil {
				return err
			}
			for _, h := range report.Invalid {
				fmt.Fprintf(out, "invalid: %s\n", h)
			}
			if !report.OK() {
				return fmt.Errorf("verify: %d of %d commit(s) failed validation", len(report.Invalid), report.Checked)
			}

			signed := 0
			if signatures || allowedSigners != "" || requireSigned {
				var allowed []ssh.PublicKey
				if allowedSigners != "" {
					if allowed, err = loadAllowedSigners(allowedSigners); err != nil {
						return err
					}
				}
				signed, err = verifySignatures(cmd, r, newSSHSignatureVerifier(allowed), requireSigned)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "ok: verified %d commit(s)", report.Checked)
			if signatures || allowedSigners != "" || requireSigned {
				fmt.Fprintf(out, ", %d signature(s)", signed)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&signatures, "signatures", false, "also check SSH commit signatures")
	cmd.Flags().StringVar(&allowedSigners, "allowed-signers", "", "authorized_keys file of trusted signing keys")
	cmd.Flags().BoolVar(&requireSigned, "require-signed", false, "fail on unsigned commits")

	return cmd
}

// verifySignatures checks every commit reachable from a branch and returns
// how many carried a valid signature.
func verifySignatures(cmd *cobra.Command, r *repo.Repo, verify repo.SignatureVerifier, requireSigned bool) (int, error) {
	ctx := cmd.Context()
	branches, err := r.ListBranches(ctx)
	if err != nil {
		return 0, err
	}

	var stack []object.Hash
	for _, b := range branches {
		stack = append(stack, b.Head)
	}
	seen := make(map[object.Hash]struct{})
	signed := 0
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}

		c, err := r.GetCommit(ctx, h)
		if err != nil {
			return signed, err
		}
		stack = append(stack, c.Parents...)

		err = r.VerifySignature(ctx, h, verify)
		switch {
		case err == nil:
			signed++
		case errors.Is(err, vcserr.ErrValidation) && object.CommitSignature(c) == "":
			if requireSigned {
				return signed, fmt.Errorf("commit %s is not signed", h.Short())
			}
		default:
			return signed, fmt.Errorf("commit %s: %w", h.Short(), err)
		}
	}
	return signed, nil
}
