package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrEthical07/cyclecore/internal/storage"
	"github.com/MrEthical07/cyclecore/password"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }

// userCreator is the slice of storage.UserRepository useradd needs.
type userCreator interface {
	CreateUser(ctx context.Context, username, passwordHash string) (string, error)
}

func runUserAdd(ctx context.Context, cfg daemonConfig, logger *slog.Logger, username string, w io.Writer) error {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	hasher, err := password.NewHasher(cfg.engineConfig().Password)
	if err != nil {
		return err
	}
	return addUser(ctx, repoCreator{storage.NewUserRepository(db)}, hasher, username, w)
}

func addUser(ctx context.Context, users userCreator, hasher *password.Hasher, username string, w io.Writer) error {
	pw, err := promptPassword(w)
	if err != nil {
		return err
	}
	defer clear(pw)

	hash, err := hasher.Hash(string(pw))
	if err != nil {
		return err
	}

	id, err := users.CreateUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return err
	}
	fmt.Fprintf(w, "created user %s (%s)\n", username, id)
	return nil
}

func promptPassword(w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Enter password: ")
	first, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword()
	fmt.Fprintln(w)
	defer clear(second)
	if err != nil {
		clear(first)
		return nil, err
	}
	if !bytes.Equal(first, second) {
		clear(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

type repoCreator struct {
	repo *storage.UserRepository
}

func (r repoCreator) CreateUser(ctx context.Context, username, passwordHash string) (string, error) {
	u, err := r.repo.CreateUser(ctx, username, passwordHash)
	return u.UserID, err
}
