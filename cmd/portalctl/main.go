// Command portalctl runs maintenance tasks against the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"eduface/internal/app"
	"eduface/internal/config"
	"eduface/internal/logging"
	"eduface/internal/portal"
)

type command struct {
	usage string
	run   func(ctx context.Context, p *app.Portal, args []string, out io.Writer) error
}

var commands = map[string]command{
	"create-admin":          {"[-name N] [-email E] [-password P]", createAdmin},
	"reset-password":        {"-email E -password P", resetPassword},
	"list-users":            {"", listUsers},
	"create-subject-sheets": {"", createSubjectSheets},
	"seed-attendance":       {"[-days 7] [-seed N]", seedAttendance},
	"migrate-attendance":    {"", migrateAttendance},
}

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	err = cmd.run(ctx, p, os.Args[2:], os.Stdout)
	if cerr := p.Close(); cerr != nil {
		slog.Warn("close handles", "error", cerr)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: portalctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s\n", name, commands[name].usage)
	}
}

var operator = portal.Identity{Role: portal.RoleAdmin}

func createAdmin(ctx context.Context, p *app.Portal, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	name := fs.String("name", "EDUFACE Administrator", "full name")
	email := fs.String("email", "admin@eduface.com", "login email")
	password := fs.String("password", "admin123", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := p.Service.CreateAdmin(ctx, *name, *email, *password)
	if errors.Is(err, portal.ErrConflict) {
		fmt.Fprintf(out, "admin account %s already exists\n", *email)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created admin %d (%s)\n", u.ID, u.Email)
	if *password == "admin123" {
		fmt.Fprintln(out, "change the default password after first login")
	}
	return nil
}

func resetPassword(ctx context.Context, p *app.Portal, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}
	if err := p.Service.ResetPassword(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Fprintf(out, "password reset for %s\n", *email)
	return nil
}

func listUsers(ctx context.Context, p *app.Portal, _ []string, out io.Writer) error {
	users, err := p.Service.Users(ctx, operator)
	if err != nil {
		return err
	}
	for _, u := range users {
		active := ""
		if !u.IsActive {
			active = " (inactive)"
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s%s\n", u.ID, u.FullName, u.Email, u.StudentID, u.Role, active)
	}
	return nil
}

// createSubjectSheets creates every missing table. Postgres tables are
// created when the store is opened.
func createSubjectSheets(ctx context.Context, p *app.Portal, _ []string, out io.Writer) error {
	if p.Sheets == nil {
		fmt.Fprintln(out, "relational store: tables already migrated")
		return nil
	}
	created, err := p.Sheets.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintln(out, "all tables already exist")
		return nil
	}
	fmt.Fprintf(out, "created %s\n", strings.Join(created, ", "))
	return nil
}

// seedAttendance writes random demo marks: for each of the last days and
// each routine, a random subset of students gets a random status.
func seedAttendance(ctx context.Context, p *app.Portal, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed-attendance", flag.ContinueOnError)
	days := fs.Int("days", 7, "number of days back to fill")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	users, err := p.Service.Users(ctx, operator)
	if err != nil {
		return err
	}
	var students []portal.User
	for _, u := range users {
		if u.Role == portal.RoleStudent && u.IsActive {
			students = append(students, u)
		}
	}
	routines, err := p.Service.Routines(ctx, "", 0)
	if err != nil {
		return err
	}
	if len(students) == 0 || len(routines) == 0 {
		return errors.New("need at least one student and one routine")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed>>1))
	statuses := []string{"Present", "Absent", "Late"}
	today := time.Now()
	total := 0
	for d := 0; d < *days; d++ {
		date := today.AddDate(0, 0, -d).Format(portal.DateLayout)
		for _, r := range routines {
			n := min(len(students), 3+rng.IntN(len(students)))
			marks := make([]portal.Mark, 0, n)
			for _, i := range rng.Perm(len(students))[:n] {
				marks = append(marks, portal.Mark{
					UserID:  students[i].ID,
					Subject: r.Subject,
					Status:  statuses[rng.IntN(len(statuses))],
					Date:    date,
				})
			}
			prepared, err := p.Service.PrepareMarks(ctx, operator, marks)
			if errors.Is(err, portal.ErrUnknownSubject) {
				fmt.Fprintf(out, "skipping %s: no attendance table\n", r.Subject)
				continue
			}
			if err != nil {
				return err
			}
			saved, err := p.Service.RecordAttendance(ctx, prepared)
			if err != nil {
				return err
			}
			total += len(saved)
		}
	}
	fmt.Fprintf(out, "created %d attendance records\n", total)
	return nil
}

func migrateAttendance(ctx context.Context, p *app.Portal, _ []string, out io.Writer) error {
	if p.Sheets == nil {
		return errors.New("migrate-attendance only applies to spreadsheet stores")
	}
	n, err := p.Sheets.MigrateLegacyAttendance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "copied %d legacy attendance rows\n", n)
	return nil
}
