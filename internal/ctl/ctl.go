// Package ctl implements matenetctl, the operator command line for tasks
// that have no HTTP surface.
package ctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/cryptox"
	"github.com/matenet/backend/internal/flagx"
	"golang.org/x/term"
)

// cipherKeyAlphabet is the character set for generated cipher keys. Keys are
// printable so they can be stored as plain secret strings.
const cipherKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const usage = `usage: matenetctl <command> [flags]

commands:
  set-password -user <userId>   prompt for a password and store it for the user
  gen-cipher-key                print a random 32-character cipher key
`

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// PasswordSetter stores a user's password.
type PasswordSetter interface {
	SetPassword(ctx context.Context, userID, plaintext string) error
}

// OpenFunc connects to the backing store and returns a setter plus a
// release function.
type OpenFunc func(ctx context.Context) (PasswordSetter, func(), error)

var ErrUsage = errors.New("usage error")

// Run dispatches args (without the program name) to a command.
func Run(ctx context.Context, args []string, w io.Writer, open OpenFunc) error {
	if len(args) == 0 {
		fmt.Fprint(w, usage)
		return ErrUsage
	}

	switch args[0] {
	case "set-password":
		return setPassword(ctx, args[1:], w, open)
	case "gen-cipher-key":
		key, err := GenerateCipherKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, key)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(w, usage)
		return nil
	}

	fmt.Fprint(w, usage)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
}

func setPassword(ctx context.Context, args []string, w io.Writer, open OpenFunc) error {
	fs := flag.NewFlagSet("set-password", flag.ContinueOnError)
	fs.SetOutput(w)
	userID := fs.String("user", "", "user id")

	// server configuration flags share the command line
	if err := fs.Parse(userArgs(args)); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *userID == "" {
		return fmt.Errorf("%w: -user is required", ErrUsage)
	}

	pw, err := GetPassword(w)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	if len(pw) == 0 {
		return fmt.Errorf("%w: empty password", ErrUsage)
	}

	setter, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := setter.SetPassword(ctx, *userID, string(pw)); err != nil {
		return err
	}
	fmt.Fprintf(w, "password updated for %s\n", *userID)
	return nil
}

func userArgs(args []string) []string {
	return flagx.FilterArgs(args, []string{"-user", "--user"})
}

// GetPassword prompts on w and reads a password from the terminal without
// echo. The caller should wipe the result.
func GetPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GenerateCipherKey returns a random printable key of cryptox.KeySize bytes.
func GenerateCipherKey() (string, error) {
	// bytes at or above limit are discarded to keep the draw uniform
	limit := 256 - 256%len(cipherKeyAlphabet)

	out := make([]byte, 0, cryptox.KeySize)
	for len(out) < cryptox.KeySize {
		for _, b := range common.GenerateRandByteArray(cryptox.KeySize) {
			if int(b) < limit && len(out) < cryptox.KeySize {
				out = append(out, cipherKeyAlphabet[int(b)%len(cipherKeyAlphabet)])
			}
		}
	}
	if _, err := cryptox.NewCipher(out); err != nil {
		return "", err
	}
	return string(out), nil
}
