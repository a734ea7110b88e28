package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loanworks/granite/internal/config"
	"github.com/loanworks/granite/internal/core"
	"github.com/loanworks/granite/internal/core/model"
	"github.com/loanworks/granite/internal/core/rules"
	"github.com/loanworks/granite/internal/oracle"
	"github.com/loanworks/granite/internal/store"
)

type Server struct {
	Engine *core.Engine
	Store  store.Store
}

func NewServer() *Server {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Env overrides for deployment secrets.
	if v := os.Getenv("ORACLE_PROVIDER"); v != "" {
		cfg.Oracle.Provider = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("STORE_URI"); v != "" {
		cfg.Store.URI = v
	}
	if v := os.Getenv("STORE_USER"); v != "" {
		cfg.Store.User = v
	}
	if v := os.Getenv("STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}

	var st store.Store
	switch cfg.Store.Backend {
	case "memgraph":
		st, err = store.NewGraphStore(cfg.Store.URI, cfg.Store.User, cfg.Store.Password)
		if err != nil {
			log.Fatalf("Failed to connect to memgraph: %v", err)
		}
	default:
		st = store.NewMemoryStore()
	}

	orc, err := oracle.NewClient(context.Background(), cfg.Oracle, cfg.Retry)
	if err != nil {
		log.Fatalf("Failed to initialize oracle client: %v", err)
	}

	catalogPath := cfg.Rules.CatalogPath
	if catalogPath == "" {
		catalogPath = "config/rules.toml"
	}
	catalog, err := rules.LoadCatalog(catalogPath)
	if err != nil {
		log.Fatalf("Failed to load rule catalog: %v", err)
	}

	engine, err := core.NewEngine(st, orc, cfg, catalog)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	return &Server{Engine: engine, Store: st}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.PUT("/loans/:loan_id/documents", s.PutDocuments)
	r.POST("/loans/:loan_id/reconcile", s.Reconcile)
	r.POST("/loans/:loan_id/compliance/run", s.RunCompliance)
	r.GET("/loans/:loan_id/attributes", s.GetAttributes)
	r.GET("/loans/:loan_id/calculations/:name", s.GetCalculationTrace)
	r.GET("/loans/:loan_id/compliance", s.GetComplianceResults)

	return r
}

type PutDocumentsRequest struct {
	LoanType  string `json:"loan_type"`
	State     string `json:"state"`
	Documents []struct {
		ID    string `json:"id"`
		Pages []struct {
			Number int    `json:"number"`
			Text   string `json:"text"`
		} `json:"pages"`
	} `json:"documents"`
}

// PutDocuments is the intake point for the ingestion collaborator: raw
// files are out of scope, this accepts already-extracted page text.
func (s *Server) PutDocuments(c *gin.Context) {
	loanID := c.Param("loan_id")

	var req PutDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	now := time.Now().UTC()
	docs := make([]model.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		doc := model.Document{
			ID:        d.ID,
			LoanID:    loanID,
			PageCount: len(d.Pages),
			CreatedAt: now,
			Status:    model.DocStatusOK,
		}
		for _, p := range d.Pages {
			doc.Pages = append(doc.Pages, model.Page{Number: p.Number, Text: p.Text})
		}
		docs = append(docs, doc)
	}

	ctx := c.Request.Context()
	if err := s.Store.PutLoan(ctx, model.Loan{ID: loanID, LoanType: req.LoanType, State: req.State}); err != nil {
		log.Printf("Failed to store loan %s: %v", loanID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store loan"})
		return
	}
	if err := s.Store.PutDocuments(ctx, loanID, docs); err != nil {
		log.Printf("Failed to store documents for loan %s: %v", loanID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store documents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "documents": len(docs)})
}

// Reconcile is idempotent and safe to call repeatedly.
func (s *Server) Reconcile(c *gin.Context) {
	run, err := s.Engine.RunReconciliation(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		log.Printf("Reconciliation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) RunCompliance(c *gin.Context) {
	results, err := s.Engine.RunCompliance(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		log.Printf("Compliance run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Compliance run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) GetAttributes(c *gin.Context) {
	run, err := s.Store.LatestRun(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No reconciliation run for loan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution_id": run.ExecutionID, "attributes": run.Attributes})
}

func (s *Server) GetCalculationTrace(c *gin.Context) {
	run, err := s.Store.LatestRun(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No reconciliation run for loan"})
		return
	}
	trace, ok := run.TraceByAttribute(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No calculation trace for attribute"})
		return
	}
	c.JSON(http.StatusOK, trace)
}

func (s *Server) GetComplianceResults(c *gin.Context) {
	results, err := s.Store.LatestComplianceResults(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No compliance results for loan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
