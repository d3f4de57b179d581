package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/client"
	"github.com/nerrad567/bulles-portal/internal/results"
	"github.com/nerrad567/bulles-portal/internal/sessionguard"
)

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", a.errOut)
	remember := fs.Bool("remember", false, "keep the session across restarts")
	username := fs.String("u", "", "username (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, until := a.guard.Lockout(); !until.IsZero() {
		return fmt.Errorf("%w: réessayez après %s", sessionguard.ErrLockedOut, until.Local().Format("15:04:05"))
	}

	user := *username
	if user == "" {
		var err error
		if user, err = a.prompt("Identifiant: "); err != nil {
			return err
		}
	}
	password, err := a.prompt("Mot de passe: ")
	if err != nil {
		return err
	}

	c := a.captcha()
	answer, err := a.prompt(c.Question() + " ")
	if err != nil {
		return err
	}
	if !c.Verify(answer) {
		return errCaptcha
	}

	if err := a.guard.Login(ctx, a.client, user, password, *remember); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			attempts, _ := a.guard.Lockout()
			a.log.Debug("login rejected", "attempts", attempts)
		}
		return err
	}

	s := a.guard.Session()
	if s == nil {
		return sessionguard.ErrNotAuthenticated
	}
	fmt.Fprintf(a.out, "Connecté en tant que %s (%s), session %s\n", s.User.FullName, s.User.ID, s.Scope)
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	if err := newFlagSet("logout", a.errOut).Parse(args); err != nil {
		return err
	}

	s, err := a.session()
	if err != nil {
		a.guard.Logout()
		fmt.Fprintln(a.out, "Aucune session active")
		return nil
	}

	// Local logout happens regardless; the server call only matters when
	// revocation is enabled there.
	if err := a.client.Logout(ctx, s.AccessToken); err != nil {
		a.log.Warn("server logout failed", "error", err)
	}
	a.guard.Logout()
	fmt.Fprintln(a.out, "Déconnecté")
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	if err := newFlagSet("profile", a.errOut).Parse(args); err != nil {
		return err
	}

	var user *auth.User
	err := a.withToken(ctx, func(token string) error {
		var err error
		user, err = a.client.Profile(ctx, token)
		return err
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Identifiant\t%s\n", user.ID)
	fmt.Fprintf(tw, "Nom\t%s\n", user.FullName)
	if user.Class != "" {
		fmt.Fprintf(tw, "Classe\t%s\n", user.Class)
	}
	fmt.Fprintf(tw, "Rôle\t%s\n", user.Role)
	return tw.Flush()
}

func (a *app) results(ctx context.Context, args []string) error {
	fs := newFlagSet("results", a.errOut)
	trimester := fs.Int("t", results.FirstTrimester, "trimester")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var report *results.Report
	err := a.withToken(ctx, func(token string) error {
		var err error
		report, err = a.client.Results(ctx, token, *trimester)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Bulletin du trimestre %d: %s\n", report.Trimester, report.StudentID)
	fmt.Fprintf(a.out, "Moyenne %.2f, rang %d/%d, %s\n", report.Average, report.Rank, report.TotalStudents, report.Mention)
	if report.Evolution != "" {
		fmt.Fprintf(a.out, "Évolution: %s\n", report.Evolution)
	}
	fmt.Fprintln(a.out)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Matière\tNote\tAppréciation")
	for _, n := range report.Notes {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\n", n.Subject, n.Score, n.Appreciation)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if report.Comment != "" {
		fmt.Fprintf(a.out, "\n%s\n", report.Comment)
	}
	return nil
}

func (a *app) analytics(ctx context.Context, args []string) error {
	fs := newFlagSet("analytics", a.errOut)
	trimester := fs.Int("t", results.FirstTrimester, "trimester")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var summary *results.Analytics
	err := a.withToken(ctx, func(token string) error {
		var err error
		summary, err = a.client.Analytics(ctx, token, *trimester)
		return err
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Élèves\t%d\n", summary.TotalStudents)
	fmt.Fprintf(tw, "Sessions actives\t%d\n", summary.ActiveSessions)
	fmt.Fprintf(tw, "Moyenne de classe\t%.2f\n", summary.AverageScore)
	fmt.Fprintf(tw, "Meilleur élève\t%s\n", summary.TopPerformer)
	return tw.Flush()
}

func (a *app) auditLog(ctx context.Context, args []string) error {
	fs := newFlagSet("audit", a.errOut)
	action := fs.String("action", "", "only this action (e.g. LOGIN_FAILED)")
	username := fs.String("user", "", "only this username")
	limit := fs.Int("n", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var res *audit.ListResult
	err := a.withToken(ctx, func(token string) error {
		var err error
		res, err = a.client.AuditLog(ctx, token, audit.Filter{
			Action:   *action,
			Username: *username,
			Limit:    *limit,
		})
		return err
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tAction\tUtilisateur\tAdresse")
	for _, e := range res.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Action, e.Username, e.RemoteAddr)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d/%d entrées\n", len(res.Entries), res.Total)
	return nil
}

func (a *app) status(args []string) error {
	fs := newFlagSet("status", a.errOut)
	limit := fs.Int("n", 10, "security log entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state := a.guard.Restore()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "État\t%s\n", state)
	if s := a.guard.Session(); s != nil {
		fmt.Fprintf(tw, "Utilisateur\t%s (%s)\n", s.User.FullName, s.User.ID)
		fmt.Fprintf(tw, "Stockage\t%s\n", s.Scope)
		fmt.Fprintf(tw, "Session\t%s\n", s.SessionID)
	}
	attempts, until := a.guard.Lockout()
	if attempts > 0 {
		fmt.Fprintf(tw, "Échecs de connexion\t%d\n", attempts)
	}
	if !until.IsZero() {
		fmt.Fprintf(tw, "Verrouillé jusqu'à\t%s\n", until.Local().Format(time.TimeOnly))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	log := a.guard.ActivityLog()
	if len(log) == 0 || *limit <= 0 {
		return nil
	}
	if len(log) > *limit {
		log = log[len(log)-*limit:]
	}
	fmt.Fprintln(a.out)
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, e := range log {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Action, e.Username)
	}
	return tw.Flush()
}

// watch keeps the session open until it expires or ctx ends. Each line on
// stdin counts as activity; logins elsewhere are reported.
func (a *app) watch(ctx context.Context, args []string) error {
	if err := newFlagSet("watch", a.errOut).Parse(args); err != nil {
		return err
	}

	s, err := a.session()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Session de %s active. Entrée pour rester connecté, Ctrl+C pour quitter.\n", s.User.FullName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.feedActivity(ctx)

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- a.client.WatchSessions(ctx, s.AccessToken, func(ev client.SessionEvent) {
			switch ev.Type {
			case client.EventSessionStarted:
				a.guard.NotifyOtherSession(ev.SessionID)
			case client.EventSessionEnded:
				a.log.Info("session ended elsewhere", "session_id", ev.SessionID)
			}
		})
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-a.expired:
		cancel()
		<-watchErr
		return nil
	case err := <-watchErr:
		if err != nil {
			return fmt.Errorf("watching sessions: %w", err)
		}
		return nil
	}
}

// feedActivity reports a guard activity for every line read until EOF.
func (a *app) feedActivity(ctx context.Context) {
	for {
		if _, err := a.in.ReadString('\n'); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.guard.Activity()
	}
}
