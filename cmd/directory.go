package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/cache"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var statusesCmd = &cobra.Command{
	Use:   "statuses",
	Short: "List the board's statuses",
	Long: `Lists the status columns in board order. --sync writes the statuses of
config.yml to the database: missing ones are created and existing ones take
the configured color and order.`,
	Args: cobra.NoArgs,
	RunE: runStatuses,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE:  runUsers,
}

var usersAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersAdd,
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List role assignments",
	Long: `Lists role assignments. With --watch the list stays live and follows
assignments made by other taskboard processes.`,
	Args: cobra.NoArgs,
	RunE: runRoles,
}

var rolesAssignCmd = &cobra.Command{
	Use:   "assign USER ROLE",
	Short: "Grant a user a role",
	Long:  `Grants a role (admin, member or viewer), optionally scoped to --project.`,
	Args:  cobra.ExactArgs(2), //nolint:mnd // user and role
	RunE:  runRolesAssign,
}

var rolesRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke a role assignment",
	Args:  cobra.ExactArgs(1),
	RunE:  runRolesRevoke,
}

var roleNames = []string{task.RoleAdmin, task.RoleMember, task.RoleViewer}

func init() {
	statusesCmd.Flags().Bool("sync", false, "write the configured statuses to the database")
	rootCmd.AddCommand(statusesCmd)

	usersAddCmd.Flags().String("email", "", "email address")
	usersCmd.AddCommand(usersAddCmd)
	rootCmd.AddCommand(usersCmd)

	rolesCmd.Flags().BoolP("watch", "w", false, "live-update on changes")
	rolesAssignCmd.Flags().String("project", "", "limit the role to a project")
	rolesCmd.AddCommand(rolesAssignCmd)
	rolesCmd.AddCommand(rolesRevokeCmd)
	rootCmd.AddCommand(rolesCmd)
}

func runStatuses(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if sync, _ := cmd.Flags().GetBool("sync"); sync {
		if err := s.seedStatuses(ctx, true); err != nil {
			return err
		}
		if err := s.engine.Load(ctx); err != nil {
			return err
		}
	}

	l := s.lookup()
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, l.Statuses)
	}
	output.StatusTable(os.Stdout, l.Statuses, l)
	return nil
}

func runUsers(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	users := s.engine.Users()
	if outputFormat() == output.FormatJSON {
		if users == nil {
			users = []task.User{}
		}
		return output.JSON(os.Stdout, users)
	}
	output.UserTable(os.Stdout, users)
	return nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	name := strings.TrimSpace(args[0])
	if name == "" {
		return clierr.New(clierr.InvalidInput, "user name is required")
	}
	email, _ := cmd.Flags().GetString("email")
	u, err := s.store.EnsureUser(ctx, name, strings.TrimSpace(email))
	if err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, u)
	}
	output.Messagef(os.Stdout, "User %s: %s", output.ShortID(u.ID), u.Name)
	return nil
}

func runRoles(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	roles, err := s.store.FetchRoleAssignments(ctx)
	if err != nil {
		return err
	}
	c := cache.New[task.RoleAssignment]()
	c.Replace(roles)
	render := func() error { return renderRoles(s, c.All()) }

	if err := render(); err != nil {
		return err
	}
	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return nil
	}
	return watchRoles(ctx, s, c, render)
}

func renderRoles(s *session, roles []task.RoleAssignment) error {
	slices.SortStableFunc(roles, func(a, b task.RoleAssignment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if outputFormat() == output.FormatJSON {
		if roles == nil {
			roles = []task.RoleAssignment{}
		}
		return output.JSON(os.Stdout, roles)
	}
	output.RoleTable(os.Stdout, roles, s.lookup())
	return nil
}

// watchRoles keeps c current from the role assignment feed and re-renders on
// every applied event.
func watchRoles(ctx context.Context, s *session, c *cache.Cache[task.RoleAssignment], render func() error) error {
	changed := make(chan struct{}, 1)
	r := engine.NewReconciler(feed.EntityRoleAssignments, c,
		engine.WithOnChange[task.RoleAssignment](func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}))
	unsubscribe := r.Subscribe(s.hub)
	defer unsubscribe()

	go func() {
		err := s.store.Watch(ctx, func(err error) {
			fmt.Fprintf(os.Stderr, "Warning: watching database: %v\n", err)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: starting database watcher: %v\n", err)
		}
	}()

	fmt.Fprintln(os.Stderr, "Watching for changes... (Ctrl+C to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			// New users may have been added along with their roles.
			if err := s.engine.Load(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: reloading users: %v\n", err)
			}
			clearScreen()
			if err := render(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: rendering roles: %v\n", err)
			}
		}
	}
}

func runRolesAssign(cmd *cobra.Command, args []string) error {
	role := strings.ToLower(strings.TrimSpace(args[1]))
	if !slices.Contains(roleNames, role) {
		return clierr.Newf(clierr.InvalidInput, "invalid role %q; allowed: %s", args[1], strings.Join(roleNames, ", ")).
			WithDetails(map[string]any{"role": args[1], "allowed": roleNames})
	}

	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := s.resolveUsers(ctx, []string{args[0]})
	if err != nil {
		return err
	}
	var project *string
	if v, _ := cmd.Flags().GetString("project"); strings.TrimSpace(v) != "" {
		project = task.Ptr(strings.TrimSpace(v))
	}

	r, err := s.store.AssignRole(ctx, ids[0], role, project)
	if err != nil {
		return clierr.Wrap(clierr.PersistenceFailed, err, "%v", err)
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, r)
	}
	scope := "all projects"
	if project != nil {
		scope = "project " + *project
	}
	output.Messagef(os.Stdout, "Granted %s %s on %s (%s)", s.lookup().UserName(r.UserID), r.Role, scope, output.ShortID(r.ID))
	return nil
}

func runRolesRevoke(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	roles, err := s.store.FetchRoleAssignments(ctx)
	if err != nil {
		return err
	}
	r, err := resolveRole(roles, args[0])
	if err != nil {
		return err
	}
	if err := s.store.RevokeRole(ctx, r.ID); err != nil {
		return clierr.Wrap(clierr.PersistenceFailed, err, "%v", err)
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]any{"status": "revoked", "id": r.ID})
	}
	output.Messagef(os.Stdout, "Revoked %s %s (%s)", s.lookup().UserName(r.UserID), r.Role, output.ShortID(r.ID))
	return nil
}

// resolveRole finds a role assignment by id or unique id prefix.
func resolveRole(roles []task.RoleAssignment, ref string) (task.RoleAssignment, error) {
	ref = strings.TrimSpace(ref)
	var matches []task.RoleAssignment
	for _, r := range roles {
		if r.ID == ref {
			return r, nil
		}
		if ref != "" && strings.HasPrefix(r.ID, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return task.RoleAssignment{}, clierr.Newf(clierr.InvalidInput, "role assignment %q not found", ref)
	default:
		return task.RoleAssignment{}, clierr.Newf(clierr.InvalidInput, "role assignment %q is ambiguous", ref)
	}
}
