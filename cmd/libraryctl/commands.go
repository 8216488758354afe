package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/store"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			if err := models.MigrateTable(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func jobNames() []string {
	return []string{
		workflow.JobPenaltyAccrual,
		workflow.JobHoldingAudit,
		workflow.JobReservationAllocation,
		workflow.JobMembershipReminder,
		workflow.JobOutboxProcessor,
	}
}

func newRunJobCmd(a *app) *cobra.Command {
	var userId int
	cmd := &cobra.Command{
		Use:       "run-job <name>",
		Short:     "Run one scheduled job now",
		Long:      "Run one scheduled job now. Jobs: " + strings.Join(jobNames(), ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.withEngine(cmd.Context())
			if err != nil {
				return err
			}

			var summary workflow.RunSummary
			if userId > 0 {
				summary, err = engine.RefreshUser(cmd.Context(), userId)
			} else {
				job, ok := engine.Job(args[0])
				if !ok {
					return fmt.Errorf("unknown job %q (one of %s)", args[0], strings.Join(jobNames(), ", "))
				}
				summary, err = job.Run(cmd.Context())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d updated=%d failed=%d\n", summary.Processed, summary.Updated, summary.Failed)
			return err
		},
	}
	cmd.Flags().IntVar(&userId, "user", 0, "refresh a single user (accrual, audit and allocation) instead")
	return cmd
}

func newOutboxCmd(a *app) *cobra.Command {
	outbox := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and recover notification delivery",
	}

	outbox.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Count outbox messages by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			counts, err := store.New(a.db).CountOutboxByStatus(cmd.Context())
			if err != nil {
				return err
			}
			printCounts(cmd, counts)
			return nil
		},
	})

	outbox.AddCommand(&cobra.Command{
		Use:   "requeue [id...]",
		Short: "Move Dead messages back to Pending; no ids requeues every Dead message",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIds(args)
			if err != nil {
				return err
			}
			engine, err := a.withEngine(cmd.Context())
			if err != nil {
				return err
			}
			n, err := engine.Outbox.RequeueDead(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d message(s)\n", n)
			return nil
		},
	})
	return outbox
}

func newConfigCmd(a *app) *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Read and change rule parameters",
	}

	cfg.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every stored rule parameter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			rows, err := store.New(a.db).ListConfigs(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tDESCRIPTION")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Key, r.Value, r.Description)
			}
			return w.Flush()
		},
	})

	var description string
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Insert or overwrite a rule parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			s := store.New(a.db)
			if err := s.SetConfig(cmd.Context(), args[0], args[1], description); err != nil {
				return err
			}
			// parse now so a malformed value is reported immediately
			if _, err := workflow.LoadRuleConfig(cmd.Context(), s, a.logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
	set.Flags().StringVar(&description, "description", "", "describe the parameter")
	cfg.AddCommand(set)
	return cfg
}

func newTokenCmd(a *app) *cobra.Command {
	var userId int
	var role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch role {
			case utils.RoleMember, utils.RoleStaff, utils.RoleAdmin:
			default:
				return fmt.Errorf("role must be %s, %s or %s", utils.RoleMember, utils.RoleStaff, utils.RoleAdmin)
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			user, err := store.New(a.db).GetUser(cmd.Context(), userId)
			if err != nil {
				return err
			}
			token, err := utils.JwtGenerate(user.ID, user.Name, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().IntVar(&userId, "user", 0, "user id")
	cmd.Flags().StringVar(&role, "role", utils.RoleMember, "Member, Staff or Admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func parseIds(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return utils.UniqueSlice(ids), nil
}

func printCounts(cmd *cobra.Command, counts map[models.OutboxStatus]int64) {
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[models.OutboxStatus(s)])
	}
	_ = w.Flush()
}
