// Command officeflow runs the document workflow server and offers operator
// commands against the same data root.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"officeflow/internal/adapters/httpapi"
	"officeflow/internal/blob"
	"officeflow/internal/config"
	"officeflow/internal/core"
	"officeflow/internal/logger"
	"officeflow/pkg/domain"
)

func main() {
	if err := run(context.Background(), os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 1 {
		args = append(args, "--help")
	}
	root := &cli.Command{
		Name:   "officeflow",
		Usage:  "Departmental document workflow server and operator CLI",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: "load settings from these .env files"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			checkCommand(),
			departmentCommand(),
			documentCommand(),
			dakCommand(),
			registerCommand(),
		},
	}
	return root.Run(ctx, args)
}

// runtime bundles what every command opens from the configuration.
type runtime struct {
	cfg config.Config
	log *zap.Logger
	svc *core.Service
}

func (r *runtime) Close() {
	_ = r.svc.Close()
	_ = r.log.Sync()
}

func open(ctx context.Context, c *cli.Command, extra ...core.Option) (*runtime, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Environment: cfg.Environment, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	storage := cfg.Storage()
	storage.Logger = log
	backend, err := core.OpenCollectionBackend(ctx, storage)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob())
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	opts := []core.Option{
		core.WithLogger(log),
		core.WithCollectionBackend(backend),
		core.WithBlobStore(blobs),
		core.WithAllocationRetries(cfg.AllocationRetries),
		core.WithAuditRecorder(core.NewLogAuditRecorder(log)),
	}
	svc, err := core.NewService(cfg.DataRoot, append(opts, extra...)...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, log: log, svc: svc}, nil
}

func deptFlag() cli.Flag {
	return &cli.StringFlag{Name: "dept", Required: true, Usage: "department id"}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{Name: "user", Required: true, Usage: "acting user id"}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default OFFICEFLOW_HTTP_ADDR)"},
			&cli.StringFlag{Name: "trace-file", Usage: "append JSON operation spans to this file"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := core.NewPrometheusMetricsRecorder(reg)
			if err != nil {
				return err
			}
			extra := []core.Option{core.WithMetricsRecorder(metrics)}
			if path := c.String("trace-file"); path != "" {
				f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("open trace file: %w", err)
				}
				defer f.Close()
				extra = append(extra, core.WithTracer(core.NewJSONTracer(f)))
			}
			rt, err := open(ctx, c, extra...)
			if err != nil {
				return err
			}
			defer rt.Close()
			addr := c.String("addr")
			if addr == "" {
				addr = rt.cfg.HTTPAddr
			}
			return serve(ctx, rt, addr, reg)
		},
	}
}

func serve(ctx context.Context, rt *runtime, addr string, reg *prometheus.Registry) error {
	if st := rt.svc.CheckStorage(ctx); !st.Ready() {
		rt.log.Warn("storage not ready", zap.Any("status", st))
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(rt.svc, rt.log, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("server listening", zap.String("addr", addr), zap.String("data_root", rt.cfg.DataRoot))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		rt.log.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Report data root readiness",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := open(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()
			st := rt.svc.CheckStorage(ctx)
			if err := printJSON(c.Root().Writer, st); err != nil {
				return err
			}
			if !st.Ready() {
				return errors.New("storage not ready")
			}
			return nil
		},
	}
}

func departmentCommand() *cli.Command {
	return &cli.Command{
		Name:  "dept",
		Usage: "Department administration",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a department with its administrator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "admin-user"},
					&cli.StringFlag{Name: "admin-name"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					dept, err := rt.svc.CreateDepartment(ctx, core.CreateDepartmentInput{
						ID:        c.String("id"),
						Name:      c.String("name"),
						AdminUser: c.String("admin-user"),
						AdminName: c.String("admin-name"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, dept)
				},
			},
			{
				Name:  "list",
				Usage: "List departments",
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					depts, err := rt.svc.ListDepartments(ctx)
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, depts)
				},
			},
		},
	}
}

func documentCommand() *cli.Command {
	return &cli.Command{
		Name:  "doc",
		Usage: "Document operations",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a draft document",
				Flags: []cli.Flag{
					deptFlag(), userFlag(),
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "content"},
					&cli.StringFlag{Name: "due", Usage: "due date YYYY-MM-DD"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					doc, err := rt.svc.CreateDocument(ctx, core.CreateDocumentInput{
						Department: c.String("dept"),
						Title:      c.String("title"),
						Content:    c.String("content"),
						Creator:    c.String("user"),
						DueDate:    c.String("due"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, doc)
				},
			},
			{
				Name:  "move",
				Usage: "Hand a document to another user",
				Flags: []cli.Flag{
					deptFlag(), userFlag(),
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "to", Required: true},
					&cli.StringFlag{Name: "status"},
					&cli.StringFlag{Name: "due", Usage: "due date YYYY-MM-DD"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					doc, err := rt.svc.MoveDocument(ctx, core.MoveDocumentInput{
						Department: c.String("dept"),
						DocumentID: c.String("id"),
						Target:     c.String("to"),
						Actor:      c.String("user"),
						Status:     domain.DocumentStatus(c.String("status")),
						DueDate:    c.String("due"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, doc)
				},
			},
			{
				Name:  "show",
				Usage: "Print a document",
				Flags: []cli.Flag{deptFlag(), &cli.StringFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					doc, err := rt.svc.GetDocument(ctx, c.String("dept"), c.String("id"))
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, doc)
				},
			},
		},
	}
}

func dakCommand() *cli.Command {
	return &cli.Command{
		Name:  "dak",
		Usage: "Dak register",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Record incoming or outgoing correspondence",
				Flags: []cli.Flag{
					deptFlag(), userFlag(),
					&cli.StringFlag{Name: "direction", Value: string(domain.DakIncoming)},
					&cli.StringFlag{Name: "sender", Required: true},
					&cli.StringFlag{Name: "subject", Required: true},
					&cli.StringFlag{Name: "received", Required: true, Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "mode", Value: "post", Usage: "physical mode of delivery"},
					&cli.StringFlag{Name: "assign", Required: true, Usage: "user the entry is assigned to"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					entry, err := rt.svc.RegisterDak(ctx, core.RegisterDakInput{
						Department:   c.String("dept"),
						Actor:        c.String("user"),
						Direction:    domain.DakDirection(c.String("direction")),
						Sender:       c.String("sender"),
						Subject:      c.String("subject"),
						ReceivedDate: c.String("received"),
						PhysicalMode: c.String("mode"),
						AssignedTo:   c.String("assign"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, entry)
				},
			},
			{
				Name:  "list",
				Usage: "List register entries",
				Flags: []cli.Flag{deptFlag(), &cli.StringFlag{Name: "direction"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					entries, err := rt.svc.ListDak(ctx, c.String("dept"), domain.DakDirection(c.String("direction")))
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, entries)
				},
			},
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Master register",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Write the master register as CSV",
				Flags: []cli.Flag{
					deptFlag(), userFlag(),
					&cli.StringFlag{Name: "out", Usage: "output file (default stdout)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()
					w := c.Root().Writer
					if path := c.String("out"); path != "" {
						f, err := os.Create(path)
						if err != nil {
							return err
						}
						defer f.Close()
						w = f
					}
					return rt.svc.ExportRegisterCSV(ctx, c.String("dept"), c.String("user"), w)
				},
			},
		},
	}
}
