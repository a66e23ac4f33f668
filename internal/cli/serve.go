package cli

import (
	"sayu-ops/internal/database"
	"sayu-ops/internal/handlers"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/routes"
	"sayu-ops/internal/server"
	"sayu-ops/internal/services"

	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops API (runs, audit, schema, verify, metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.Server
			if port > 0 {
				cfg.Port = port
			}
			if cfg.TokenSecret == "" {
				return server.ErrMissingSecret
			}

			targetPool, auditor, closeAudit, err := a.auditService(ctx, "public")
			if err != nil {
				return err
			}
			defer closeAudit()

			gdb, err := database.OpenGorm(targetPool)
			if err != nil {
				return err
			}
			defer closeGorm(gdb)

			visualizers := map[string]handlers.SchemaVisualizer{
				"target": services.NewSchemaService(repositories.NewSchemaRepository(targetPool)),
			}
			h := routes.Handlers{
				Runs:  handlers.NewRunHandler(repositories.NewRunRepository(gdb)),
				Audit: handlers.NewAuditHandler(auditor, a.cfg.Audit),
			}

			if a.cfg.Source.URL != "" {
				sourcePool, err := a.sourcePool(ctx)
				if err != nil {
					return err
				}
				defer sourcePool.Close()

				visualizers["source"] = services.NewSchemaService(repositories.NewSchemaRepository(sourcePool))
				h.Verify = handlers.NewVerifyHandler(services.PlanVerifier{
					Service: services.NewVerifyService(
						services.NewPostgresTables(sourcePool, a.cfg.Plan.Schema),
						services.NewPostgresTables(targetPool, a.cfg.Plan.Schema),
					),
					Source: services.NewPostgresSource(sourcePool),
					Plan:   a.cfg.Plan,
					Sample: 20,
				})
			} else {
				a.log.Warn().Msg("no source database configured, /verify is disabled")
			}
			h.Schema = handlers.NewSchemaHandler(visualizers)

			srv, err := server.NewServer(cfg, h)
			if err != nil {
				return err
			}
			return server.Run(ctx, srv, a.log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default OPS_PORT or 8080)")
	return cmd
}
