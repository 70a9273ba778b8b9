package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missiondir/internal/authz"
	"missiondir/internal/config"
	"missiondir/internal/db"
	"missiondir/internal/domain"
	"missiondir/internal/events"
	"missiondir/internal/migrate"
	"missiondir/internal/server"
	"missiondir/internal/service"
	"missiondir/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "mdir",
	Short: "Mission Directory CLI",
	Long: `Mission Directory stores short mission records under generated ids and
serves them over two bearer-token-protected API surfaces: a read-only
personnel surface and a read/write admin surface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MISSIONDIR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mission", Short: "Manage mission records"}
	cmd.AddCommand(missionCreateCmd())
	cmd.AddCommand(missionGetCmd())
	return cmd
}

func missionCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc service.Service) error {
				m, err := svc.CreateMission(ctx, name, description, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable([]domain.Mission{m})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "mission name")
	cmd.Flags().StringVar(&description, "description", "", "mission description")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func missionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get mission by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc service.Service) error {
				m, err := svc.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable([]domain.Mission{m})
			})
		},
	}
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage bearer tokens"}
	cmd.AddCommand(tokenMintCmd())
	return cmd
}

func tokenMintCmd() *cobra.Command {
	var scopeStr string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a JWT for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("MISSIONDIR_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("MISSIONDIR_JWT_SECRET is required")
			}
			scope, err := authz.ParseScope(scopeStr)
			if err != nil {
				return fmt.Errorf("invalid scope %q: use read or *", scopeStr)
			}
			token, err := server.SignToken(secret, viper.GetString("actor-id"), scope, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeStr, "scope", "read", "token scope (read or *)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name, scopeStr string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key (secret printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := authz.ParseScope(scopeStr); err != nil {
				return fmt.Errorf("invalid scope %q: use read or *", scopeStr)
			}
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					Scope:   scopeStr,
					KeyHash: store.HashAPIKey(secret),
				}
				if err := st.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("id: %s\nsecret: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&scopeStr, "scope", "read", "key scope (read or *)")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				keys, err := st.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				return st.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				w := events.Writer{DB: st.DB}
				items, err := w.Latest(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			st, err := store.New(conn, resolveTableName(cfg), resolvePrimaryKey(cfg))
			if err != nil {
				return err
			}
			if err := st.Ensure(cmd.Context()); err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("MISSIONDIR_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("MISSIONDIR_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Service:           service.New(conn, st),
				Store:             st,
				PersonnelBasePath: cfg.Server.PersonnelBasePath,
				AdminBasePath:     cfg.Server.AdminBasePath,
				Auth:              authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Mission Directory API on http://%s (personnel: %s, admin: %s, Swagger UI at /docs)\n",
				addr, cfg.Server.PersonnelBasePath, cfg.Server.AdminBasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

// --- helpers ---

// resolveTableName and resolvePrimaryKey honor the deployment-injected
// environment values over the workspace config file.
func resolveTableName(cfg *config.Config) string {
	if v := viper.GetString("table-name"); v != "" {
		return v
	}
	return cfg.Store.Table
}

func resolvePrimaryKey(cfg *config.Config) string {
	if v := viper.GetString("primary-key"); v != "" {
		return v
	}
	return cfg.Store.PrimaryKey
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	st, err := store.New(conn, resolveTableName(cfg), resolvePrimaryKey(cfg))
	if err != nil {
		return err
	}
	if err := st.Ensure(ctx); err != nil {
		return err
	}
	return fn(ctx, st)
}

func withService(ctx context.Context, fn func(context.Context, service.Service) error) error {
	return withStore(ctx, func(ctx context.Context, st store.Store) error {
		return fn(ctx, service.New(st.DB, st))
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	switch items := v.(type) {
	case []domain.Mission:
		renderTable([]string{"ID", "NAME", "DESCRIPTION", "CREATED"}, func(t table.Writer) {
			for _, m := range items {
				t.AppendRow(table.Row{m.ID, m.Name, m.Description, m.CreatedAt})
			}
		})
	case []domain.APIKey:
		renderTable([]string{"ID", "ACTOR", "NAME", "SCOPE", "CREATED"}, func(t table.Writer) {
			for _, k := range items {
				t.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.Scope, k.CreatedAt})
			}
		})
	case []domain.Event:
		renderTable([]string{"ID", "TS", "TYPE", "ENTITY", "ACTOR"}, func(t table.Writer) {
			for _, e := range items {
				t.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID})
			}
		})
	default:
		return printJSON(v)
	}
	return nil
}

func renderTable(headers []string, fill func(table.Writer)) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	row := make(table.Row, 0, len(headers))
	for _, h := range headers {
		row = append(row, h)
	}
	t.AppendHeader(row)
	fill(t)
	t.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
