package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/bitfantasy/paramcad/internal/database"
	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			version, err := database.MigrationVersion(ctx, a.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert catalog piece types missing from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			n, err := database.SeedPieceTypes(ctx, a.db, a.catalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d piece types inserted\n", n)
			return nil
		},
	}
}

func validateCmd(configPath *string) *cobra.Command {
	var pf paramFlags
	cmd := &cobra.Command{
		Use:   "validate <piece-code>",
		Short: "Check parameters against a piece type's rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			params, err := pf.resolve(a, args[0])
			if err != nil {
				return err
			}
			svc := service.NewCatalogService(a.repos.PieceType, a.catalog, nil, nil, a.logger)
			result, err := svc.Validate(ctx, &service.ValidateRequest{PieceCode: args[0], Parameters: params})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsValid {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func generateCmd(configPath *string) *cobra.Command {
	var (
		pf          paramFlags
		description string
		author      string
	)
	cmd := &cobra.Command{
		Use:   "generate <design-id>",
		Short: "Validate, record a new revision and run the generation engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			services := service.NewServices(a.repos, a.catalog, a.engine(), nil, a.cfg, nil, nil, a.logger)
			design, err := services.Design.Get(ctx, args[0])
			if err != nil {
				return err
			}
			params, err := pf.resolve(a, design.PieceType.Code)
			if err != nil {
				return err
			}
			resp, err := services.Generation.Generate(ctx, &service.GenerationRequest{
				DesignID:    design.ID,
				Parameters:  params,
				Description: description,
				GeneratedBy: author,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			return resp.Err()
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&description, "description", "", "Revision description")
	cmd.Flags().StringVar(&author, "author", "", "Recorded as generated_by (default app.default_author)")
	return cmd
}

func designsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "designs",
		Short: "List or create designs",
	}

	var pieceType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List designs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			designs, err := service.NewDesignService(a.repos.Design, a.repos.PieceType).List(ctx, pieceType)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPIECE\tNAME\tDRAWING")
			for _, d := range designs {
				code := ""
				if d.PieceType != nil {
					code = d.PieceType.Code
				}
				drawing := ""
				if d.DrawingNumber != nil {
					drawing = *d.DrawingNumber
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, code, d.Name, drawing)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&pieceType, "piece-type", "", "Filter by piece type code")

	var req service.CreateDesignRequest
	var drawing string
	create := &cobra.Command{
		Use:   "create <piece-code> <name>",
		Short: "Create a design",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			req.PieceTypeCode, req.Name = args[0], args[1]
			if drawing != "" {
				req.DrawingNumber = &drawing
			}
			design, err := service.NewDesignService(a.repos.Design, a.repos.PieceType).Create(ctx, &req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), design)
		},
	}
	create.Flags().StringVar(&req.Description, "description", "", "Design description")
	create.Flags().StringVar(&drawing, "drawing-number", "", "Unique drawing number")

	cmd.AddCommand(list, create)
	return cmd
}

func revisionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "Inspect revisions and drive the ECO workflow",
	}

	withRevisions := func(ctx context.Context, fn func(*service.RevisionService) (any, error)) (any, error) {
		a, err := newApp(ctx, *configPath)
		if err != nil {
			return nil, err
		}
		defer a.close()
		return fn(service.NewRevisionService(a.repos.Revision, a.repos.Design, nil))
	}

	list := &cobra.Command{
		Use:   "list <design-id>",
		Short: "List revisions of a design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := withRevisions(cmd.Context(), func(s *service.RevisionService) (any, error) {
				return s.List(cmd.Context(), args[0])
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	var reason string
	issue := &cobra.Command{
		Use:   "issue <revision-id> <eco-number>",
		Short: "Issue a revision under an ECO number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := withRevisions(cmd.Context(), func(s *service.RevisionService) (any, error) {
				return s.Issue(cmd.Context(), args[0], &service.IssueRequest{ECONumber: args[1], ECOReason: reason})
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	issue.Flags().StringVar(&reason, "reason", "", "ECO reason")

	obsolete := &cobra.Command{
		Use:   "obsolete <revision-id>",
		Short: "Mark a revision obsolete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := withRevisions(cmd.Context(), func(s *service.RevisionService) (any, error) {
				return s.Obsolete(cmd.Context(), args[0], &service.ObsoleteRequest{ECOReason: reason})
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	obsolete.Flags().StringVar(&reason, "reason", "", "ECO reason")

	delta := &cobra.Command{
		Use:   "delta <from-revision-id> <to-revision-id>",
		Short: "Show parameter changes between two revisions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := withRevisions(cmd.Context(), func(s *service.RevisionService) (any, error) {
				return s.ParameterDelta(cmd.Context(), args[0], args[1])
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.AddCommand(list, issue, obsolete, delta)
	return cmd
}

// paramFlags 命令行参数来源：--params 文件、--set 覆盖、--defaults 使用目录默认值
type paramFlags struct {
	file     string
	sets     []string
	defaults bool
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.file, "params", "", "JSON file with parameter values")
	cmd.Flags().StringArrayVar(&p.sets, "set", nil, "Parameter override name=value (repeatable)")
	cmd.Flags().BoolVar(&p.defaults, "defaults", false, "Start from the catalog defaults")
}

func (p *paramFlags) resolve(a *app, pieceCode string) (map[string]any, error) {
	params := map[string]any{}
	if p.defaults {
		piece, err := a.catalog.Piece(pieceCode)
		if err != nil {
			return nil, err
		}
		params = piece.Defaults()
	}
	if p.file != "" {
		data, err := os.ReadFile(p.file)
		if err != nil {
			return nil, err
		}
		var fromFile map[string]any
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p.file, err)
		}
		for k, v := range fromFile {
			params[k] = v
		}
	}
	return applySets(params, p.sets)
}

// applySets 解析 name=value；true/false 为布尔，可解析的数字为 float64，其余为字符串
func applySets(params map[string]any, sets []string) (map[string]any, error) {
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", s)
		}
		raw = strings.TrimSpace(raw)
		switch {
		case raw == "true" || raw == "false":
			params[name] = raw == "true"
		default:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				params[name] = f
			} else {
				params[name] = raw
			}
		}
	}
	return params, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
