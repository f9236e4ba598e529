package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"sfaptracker/catalog"
	"sfaptracker/config"
	"sfaptracker/db"
	"sfaptracker/directory"
	"sfaptracker/mail"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and record the built-in admins",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()
		logger.Info("database is up to date", zap.String("path", config.AppConfig.DatabasePath))
		return nil
	},
}

var seedReplace bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the built-in competency catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := catalog.Seed(cmd.Context(), conn, seedReplace)
		if err != nil {
			return err
		}
		logger.Info("catalog seeded", zap.Int("competencies", n), zap.Bool("replace", seedReplace))
		return nil
	},
}

var importOpts struct {
	file    string
	sheet   string
	replace bool
}

var importCmd = &cobra.Command{
	Use:   "import-competencies",
	Short: "Import the competency catalog from an .xlsx, .csv or .yaml file",
	Long: `Import the competency catalog from a spreadsheet.

Rows are read positionally: id, category, text, reference code, what,
looks like, critical. The first row is a header. Without --replace,
existing competencies are updated in place and others are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := catalog.ReadFile(importOpts.file, importOpts.sheet)
		if err != nil {
			return err
		}
		conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := catalog.Store(cmd.Context(), conn, items, importOpts.replace)
		if err != nil {
			return err
		}
		logger.Info("competencies imported",
			zap.String("file", importOpts.file),
			zap.Int("competencies", n),
			zap.Bool("replace", importOpts.replace))
		return nil
	},
}

var adminOpts struct {
	email     string
	firstName string
	lastName  string
	company   string
	password  string
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create or update an admin account",
	Long: `Create an account with admin rights, or reset the password of an
existing account and grant it admin rights.

The password is prompted for when --password is not given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminOpts.password
		if password == "" {
			var err error
			if password, err = promptPassword(); err != nil {
				return err
			}
		}

		conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		users := directory.NewService(conn, logger, mail.New(config.AppConfig.SMTP, logger), directory.Options{
			AppName: config.AppConfig.AppName,
			BaseURL: config.AppConfig.BaseURL,
		})
		err = users.EnsureAdmin(cmd.Context(), directory.CreateUserInput{
			FirstName: adminOpts.firstName,
			LastName:  adminOpts.lastName,
			Email:     adminOpts.email,
			Company:   adminOpts.company,
		}, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Admin account ready: %s\n", directory.NormalizeEmail(adminOpts.email))
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedReplace, "replace", false, "delete the existing catalog first")

	importCmd.Flags().StringVarP(&importOpts.file, "file", "f", "", "catalog file (.xlsx, .csv, .yaml)")
	importCmd.Flags().StringVar(&importOpts.sheet, "sheet", "", "worksheet to read (default: the first one)")
	importCmd.Flags().BoolVar(&importOpts.replace, "replace", false, "delete the existing catalog first")
	_ = importCmd.MarkFlagRequired("file")

	createAdminCmd.Flags().StringVar(&adminOpts.email, "email", "", "admin email")
	createAdminCmd.Flags().StringVar(&adminOpts.firstName, "first-name", "Admin", "first name")
	createAdminCmd.Flags().StringVar(&adminOpts.lastName, "last-name", "User", "last name")
	createAdminCmd.Flags().StringVar(&adminOpts.company, "company", "", "company")
	createAdminCmd.Flags().StringVar(&adminOpts.password, "password", "", "password (prompted when empty)")
	_ = createAdminCmd.MarkFlagRequired("email")
}

func openDB(ctx context.Context) (*sql.DB, error) {
	return db.InitDB(ctx, config.AppConfig.DatabasePath, config.AppConfig.BuiltinAdmins)
}

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
