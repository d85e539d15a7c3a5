package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/elite-command/refinery/internal/alerting"
	"github.com/elite-command/refinery/internal/classify"
	"github.com/elite-command/refinery/internal/confidence"
	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/lineage"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/normalize"
	"github.com/elite-command/refinery/internal/pipeline"
	"github.com/elite-command/refinery/internal/store"
	"github.com/elite-command/refinery/internal/template"
)

// env bundles the wired subsystems every command operates on.
type env struct {
	Store       store.Store
	Pipeline    *pipeline.Pipeline
	Recorder    *lineage.Recorder
	Alerts      *alerting.Engine
	Corrections *correction.Service
	Resolver    *template.Resolver
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// openStore opens the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv opens the store and assembles the pipeline and services.
func initEnv(ctx context.Context) (*env, error) {
	if err := cfg.Validate("process"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	resolver := template.NewResolver(st)
	scorer := confidence.NewScorer(st)
	alerts := alerting.NewEngine(st)
	recorder := lineage.NewRecorder(st, cfg.Lineage.GraphVersion, cfg.Lineage.CacheTTL)

	pipe := pipeline.New(st,
		classify.New(classify.DefaultRules()),
		resolver,
		normalize.New(normalize.DefaultCatalog()),
		scorer,
		alerts,
	)

	corrections := correction.NewService(st, &rescorer{store: st, scorer: scorer}, recorder)

	return &env{
		Store:       st,
		Pipeline:    pipe,
		Recorder:    recorder,
		Alerts:      alerts,
		Corrections: corrections,
		Resolver:    resolver,
	}, nil
}

// rescorer recomputes a record's confidence after a correction lands,
// persisting the new score so the alert history stays consistent.
type rescorer struct {
	store  store.Store
	scorer *confidence.Scorer
}

func (r *rescorer) Rescore(ctx context.Context, rec *model.Record) (float64, error) {
	threshold := configThreshold()
	if th, err := r.store.GetThresholdForCompany(ctx, rec.CompanyID); err == nil && th != nil {
		threshold = *th
	}

	score, err := r.scorer.Score(ctx, confidence.Inputs{
		TargetID:      rec.ID,
		CompanyID:     rec.CompanyID,
		Method:        rec.Method,
		TemplateUsed:  strings.HasPrefix(rec.Method, model.MethodTemplatePrefix),
		HumanVerified: rec.HumanVerified,
	}, nil, threshold)
	if err != nil {
		return 0, err
	}
	if err := r.store.SaveScore(ctx, score); err != nil {
		return 0, eris.Wrap(err, "persist rescored confidence")
	}
	return score.Overall, nil
}

// configThreshold maps the configured cut points onto the default actions.
func configThreshold() model.Threshold {
	th := model.DefaultThreshold()
	if cfg == nil {
		return th
	}
	th.Critical = cfg.Confidence.CriticalThreshold
	th.Low = cfg.Confidence.LowThreshold
	th.Medium = cfg.Confidence.MediumThreshold
	th.High = cfg.Confidence.HighThreshold
	return th
}
