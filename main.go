package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pivolan/textile_dashboard/analysis"
	"github.com/pivolan/textile_dashboard/config"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/dataset"
	"github.com/pivolan/textile_dashboard/pages"
	"github.com/pivolan/textile_dashboard/summary"
	"github.com/pivolan/textile_dashboard/telegram"
	"github.com/pivolan/textile_dashboard/web"
)

func main() {
	page := flag.String("page", "", "print a page as a text table and exit")
	query := flag.String("q", "", "search text for -page")
	rows := flag.Int("rows", 50, "rows printed by -page")
	ask := flag.String("ask", "", "ask one question in a new analysis session and exit")
	flag.Parse()

	cfg := config.GetConfig()
	if err := core.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalln("cannot init logger", err)
	}
	defer core.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := newLoader(ctx, cfg)
	analyst := analysis.NewAnalyst(analysis.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel), loader, cfg.AskPerMinute)

	switch {
	case *page != "":
		if err := printPage(ctx, os.Stdout, loader, *page, *query, *rows); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	case *ask != "":
		if err := askOnce(ctx, os.Stdout, analyst, *ask); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, loader, analyst); err != nil {
		core.Errorf(ctx, "%v", err)
		os.Exit(1)
	}
}

func newLoader(ctx context.Context, cfg *config.Config) *dataset.Loader {
	sources := []dataset.Source{dataset.NewDirSource(cfg.DataDir)}
	if cfg.S3Endpoint != "" && cfg.S3Bucket != "" {
		src, err := dataset.DialObjectSource(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Secure)
		if err != nil {
			core.Warnf(ctx, "object storage disabled: %v", err)
		} else {
			sources = append(sources, src)
		}
	}
	if cfg.DbDsn != "" {
		src, err := dataset.OpenSQLSource(cfg.DbDsn)
		if err != nil {
			core.Warnf(ctx, "sql source disabled: %v", err)
		} else {
			sources = append(sources, src)
		}
	}
	return dataset.NewLoader(dataset.NewCache(), sources...)
}

func printPage(ctx context.Context, w io.Writer, loader pages.TableLoader, slug, query string, limit int) error {
	p, ok := pages.Lookup(slug)
	if !ok || p.IsHome() {
		return fmt.Errorf("unknown page %q", slug)
	}
	v := pages.Render(ctx, loader, p, query)
	if v.Warning != "" {
		fmt.Fprintln(w, v.Warning)
	}
	fmt.Fprintln(w, summary.RenderTable(v.Table, limit))
	fmt.Fprintln(w, summary.RenderSummary(v.Summary))
	if v.Stats != nil {
		fmt.Fprintln(w, summary.RenderStats(p.DescribeColumn, v.Stats))
	}
	return nil
}

func askOnce(ctx context.Context, w io.Writer, analyst *analysis.Analyst, question string) error {
	state := analysis.NewSessionState("cli")
	if err := analyst.Start(ctx, state, pages.References()); err != nil {
		return err
	}
	defer analyst.Stop(context.WithoutCancel(ctx), state)

	ans, err := analyst.Ask(ctx, state, question)
	if err != nil {
		return err
	}
	defer ans.Close()
	if _, err := ans.WriteTo(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, loader *dataset.Loader, analyst *analysis.Analyst) error {
	missing, err := loader.Preload(ctx, pages.References()...)
	if err != nil {
		core.Warnf(ctx, "preload: %v", err)
	}
	if len(missing) > 0 {
		core.Warnf(ctx, "datasets not found: %v", missing)
	}

	states := analysis.NewStates()
	srv := &http.Server{
		Addr:              cfg.HttpAddr,
		Handler:           web.NewServer(loader, analyst, states),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.TgToken != "" {
		api, err := telegram.Dial(cfg.TgToken)
		if err != nil {
			core.Errorf(ctx, "telegram disabled: %v", err)
		} else {
			bot := telegram.NewBot(api, loader, analyst, states)
			go func() {
				if err := telegram.Run(ctx, api, bot); err != nil {
					core.Errorf(ctx, "%v", err)
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		core.Infof(ctx, "listen on: http://localhost%s", cfg.HttpAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	core.Infof(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		core.Warnf(shutdownCtx, "http shutdown: %v", err)
	}
	for _, state := range states.Active() {
		if err := analyst.Stop(shutdownCtx, state); err != nil {
			core.Warnf(shutdownCtx, "release session %s: %v", state.ID, err)
		}
	}
	return nil
}
