package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lexflow/internal/app"
	"lexflow/internal/domain"
	"lexflow/internal/repo"
	"lexflow/internal/server"
)

func tenantCmd() *cobra.Command {
	tc := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a tenant (no-op when it exists)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := a.Repo.EnsureTenant(ctx, domain.Tenant{ID: id, Name: name}); err != nil {
					return err
				}
				t, err := a.Repo.GetTenant(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "tenant id")
	add.Flags().StringVar(&name, "name", "", "practice name")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("name")
	tc.AddCommand(add)
	return tc
}

func userCmd() *cobra.Command {
	uc := &cobra.Command{Use: "user", Short: "Manage users"}
	var u domain.User
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if u.ID == "" {
				u.ID = uuid.NewString()
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := a.Repo.InsertUser(ctx, u); err != nil {
					return err
				}
				created, err := a.Repo.GetUser(ctx, u.TenantID, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	add.Flags().StringVar(&u.TenantID, "tenant", "", "tenant id")
	add.Flags().StringVar(&u.ID, "id", "", "user id (generated when empty)")
	add.Flags().StringVar(&u.Name, "name", "", "full name")
	add.Flags().StringVar(&u.Phone, "phone", "", "WhatsApp number")
	add.Flags().StringVar(&u.Email, "email", "", "email")
	_ = add.MarkFlagRequired("tenant")
	_ = add.MarkFlagRequired("name")

	var listTenant string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				users, err := a.Repo.ListUsers(ctx, listTenant)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Phone", "Email"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Phone, u.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listTenant, "tenant", "", "tenant id")
	_ = list.MarkFlagRequired("tenant")
	uc.AddCommand(add, list)
	return uc
}

func instanceCmd() *cobra.Command {
	ic := &cobra.Command{Use: "instance", Short: "Manage per-tenant WhatsApp instances"}
	var ci domain.ChannelInstance
	add := &cobra.Command{
		Use:   "add",
		Short: "Register chat provider credentials for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ci.ID = uuid.NewString()
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := a.Repo.InsertChannelInstance(ctx, ci); err != nil {
					return err
				}
				fmt.Printf("instance %q registered for tenant %s\n", ci.Name, ci.TenantID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&ci.TenantID, "tenant", "", "tenant id")
	add.Flags().StringVar(&ci.Name, "name", "", "instance name")
	add.Flags().StringVar(&ci.AgentID, "agent", "", "agent id bound to this instance")
	add.Flags().StringVar(&ci.InstanceID, "instance-id", "", "provider instance id")
	add.Flags().StringVar(&ci.Token, "token", "", "provider instance token")
	add.Flags().StringVar(&ci.ClientToken, "client-token", "", "provider client token")
	for _, f := range []string{"tenant", "name", "instance-id", "token"} {
		_ = add.MarkFlagRequired(f)
	}
	ic.AddCommand(add)
	return ic
}

func apiKeyCmd() *cobra.Command {
	kc := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var key domain.APIKey
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant-bound API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := "lf_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			key.ID = uuid.NewString()
			key.KeyHash = repo.HashAPIKey(secret)
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := a.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "tenant_id": key.TenantID, "key": secret})
				}
				fmt.Println(secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&key.TenantID, "tenant", "", "tenant id")
	create.Flags().StringVar(&key.UserID, "user", "", "user the key acts as")
	create.Flags().StringVar(&key.Name, "name", "", "label")
	_ = create.MarkFlagRequired("tenant")
	kc.AddCommand(create)
	return kc
}

func tokenCmd() *cobra.Command {
	tc := &cobra.Command{Use: "token", Short: "Bearer tokens"}
	var userID, tenantID string
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a JWT signed with LEXFLOW_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := server.SignToken(cfg.Server.JWTSecret, userID, tenantID, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	mint.Flags().StringVar(&userID, "user", "", "subject user id")
	mint.Flags().StringVar(&tenantID, "tenant", "", "restrict the token to this tenant")
	mint.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	_ = mint.MarkFlagRequired("user")
	tc.AddCommand(mint)
	return tc
}
