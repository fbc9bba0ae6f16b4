package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/crud"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/services/printer"
	"github.com/xelth-com/riveredgego/internal/store"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// ExpressionRule defines a code rule by a legacy template expression.
type ExpressionRule struct {
	RuleCode    string `json:"rule_code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Expression  string `json:"expression" validate:"required,max=200"`
	Initial     *int64 `json:"initial" validate:"omitempty,gte=0"`
	Step        int64  `json:"step" validate:"gte=0"`
	Reset       string `json:"reset" validate:"omitempty,oneof=never daily monthly yearly"`
}

// importCodeRule creates a rule from an expression such as SO{YYYYMMDD}{SEQ:4}
func (r *Router) importCodeRule(w http.ResponseWriter, req *http.Request) {
	var in ExpressionRule
	if err := crud.Decode(req.Body, &in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := crud.Struct(in); err != nil {
		respond.Error(w, req, err)
		return
	}
	initial := int64(1)
	if in.Initial != nil {
		initial = *in.Initial
	}
	if in.Step == 0 {
		in.Step = 1
	}
	if in.Reset == "" {
		in.Reset = models.ResetNever
	}

	components, err := codegen.ParseExpression(in.Expression, initial, in.Step, in.Reset)
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	rule := r.codeRules.New()
	rule.RuleCode = in.RuleCode
	rule.Name = in.Name
	rule.Description = in.Description
	rule.Expression = in.Expression
	rule.Components = components
	if err := r.codeRules.Create(req.Context(), rule); err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, rule)
}

// PreviewResponse shows the next code without consuming it.
type PreviewResponse struct {
	RuleCode string `json:"rule_code"`
	NextCode string `json:"next_code"`
}

func (r *Router) previewCodeRule(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	rule, err := r.codeRules.Get(ctx, mux.Vars(req)["uuid"])
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	next, err := r.deps.Codes.Preview(ctx, rule.TenantID, rule.RuleCode, r.deps.Now())
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, PreviewResponse{RuleCode: rule.RuleCode, NextCode: next})
}

// printLabels mints a sheet of codes and renders them as QR labels.
// The codes are consumed only if the whole sheet mints.
func (r *Router) printLabels(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var cfg printer.LabelConfig
	if err := crud.Decode(req.Body, &cfg); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := cfg.Normalize(); err != nil {
		respond.Error(w, req, err)
		return
	}

	rule, err := r.codeRules.Get(ctx, mux.Vars(req)["uuid"])
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	tenantID, err := tenancy.MustTenant(ctx)
	if err != nil {
		respond.Error(w, req, err)
		return
	}

	now := r.deps.Now()
	codes := make([]string, 0, cfg.Count)
	err = r.store.Transaction(ctx, func(tx *store.Store) error {
		for i := 0; i < cfg.Count; i++ {
			code, err := r.deps.Codes.MintTx(tx.DB(), tenantID, rule.RuleCode, now)
			if err != nil {
				return err
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		respond.Error(w, req, err)
		return
	}

	pdf, err := printer.GenerateLabelsPDF(cfg, codes)
	if err != nil {
		respond.Error(w, req, apperr.Wrap(err, apperr.KindInternal, "failed to render labels"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"labels_%s.pdf\"", rule.RuleCode))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
