package template

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	GetActiveAssignment(ctx context.Context, companyID string) (*model.TemplateAssignment, error)
	FindActiveTemplateByModel(ctx context.Context, bm model.BusinessModelType) (*model.Template, error)
	SaveAssignment(ctx context.Context, a *model.TemplateAssignment) error
}

// Resolver returns the normalization template for a company, inferring and
// persisting an automatic assignment when none exists. Resolved templates
// are cached per process lifetime; Invalidate must be called after template
// or assignment edits.
type Resolver struct {
	store Store

	mu    sync.RWMutex
	cache map[string]*model.Template // company id -> template
}

// NewResolver returns a resolver backed by store.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[string]*model.Template),
	}
}

// Resolve returns the active template for companyID, or (nil, nil) when no
// template exists for the company's inferred business model. The caller
// takes the fallback normalization path on nil.
func (r *Resolver) Resolve(ctx context.Context, companyID string) (*model.Template, error) {
	r.mu.RLock()
	cached, ok := r.cache[companyID]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	assignment, err := r.store.GetActiveAssignment(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "template: lookup assignment")
	}
	if assignment != nil {
		tmpl, err := r.store.GetTemplate(ctx, assignment.TemplateID)
		if err != nil {
			return nil, eris.Wrap(err, "template: load assigned template")
		}
		if tmpl != nil && tmpl.Active {
			r.put(companyID, tmpl)
			return tmpl, nil
		}
	}

	return r.inferAndAssign(ctx, companyID)
}

// inferAndAssign infers a business model from the company profile, picks the
// best active template for it, and persists an automatic assignment so the
// next lookup hits the assignment path.
func (r *Resolver) inferAndAssign(ctx context.Context, companyID string) (*model.Template, error) {
	company, err := r.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "template: load company")
	}

	bm := model.ModelGeneric
	if company != nil {
		if company.BusinessModel.Valid() && company.BusinessModel != "" {
			bm = company.BusinessModel
		} else {
			bm = InferBusinessModel(company.Name, company.Description)
		}
	}

	tmpl, err := r.store.FindActiveTemplateByModel(ctx, bm)
	if err != nil {
		return nil, eris.Wrap(err, "template: find template for model")
	}
	if tmpl == nil {
		zap.L().Debug("no template for inferred business model",
			zap.String("company_id", companyID),
			zap.String("business_model", string(bm)))
		return nil, nil
	}

	assignment := &model.TemplateAssignment{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		TemplateID: tmpl.ID,
		AssignedBy: "system",
		Automatic:  true,
		Confidence: model.AutoAssignConfidence,
		Active:     true,
		AssignedAt: time.Now().UTC(),
	}
	if err := r.store.SaveAssignment(ctx, assignment); err != nil {
		return nil, eris.Wrap(err, "template: persist auto assignment")
	}

	zap.L().Info("auto-assigned template",
		zap.String("company_id", companyID),
		zap.String("template_id", tmpl.ID),
		zap.String("business_model", string(bm)))

	r.put(companyID, tmpl)
	return tmpl, nil
}

// Invalidate drops the cached template for a company, or the whole cache
// when companyID is empty.
func (r *Resolver) Invalidate(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if companyID == "" {
		r.cache = make(map[string]*model.Template)
		return
	}
	delete(r.cache, companyID)
}

func (r *Resolver) put(companyID string, tmpl *model.Template) {
	r.mu.Lock()
	r.cache[companyID] = tmpl
	r.mu.Unlock()
}

// inference buckets, checked in order. First bucket with a keyword hit wins.
var inferenceBuckets = []struct {
	bm       model.BusinessModelType
	keywords []string
}{
	{model.ModelSaaS, []string{"software", "saas", "platform", "api", "cloud", "subscription"}},
	{model.ModelEcommerce, []string{"ecommerce", "retail", "store", "shop", "marketplace"}},
	{model.ModelFintech, []string{"fintech", "financial", "payment", "banking", "crypto"}},
}

// InferBusinessModel guesses a business model from company name and
// description keywords; generic when nothing matches.
func InferBusinessModel(name, description string) model.BusinessModelType {
	text := strings.ToLower(name + " " + description)
	for _, bucket := range inferenceBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(text, kw) {
				return bucket.bm
			}
		}
	}
	return model.ModelGeneric
}
