package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/catalog-service/internal/database"
)

// crawlStatusRequest is the body for POST /v1/crawler/status, the crawler
// container's out-of-process status report for one (chain, date) run.
type crawlStatusRequest struct {
	ChainName    string  `json:"chain_name" binding:"required"`
	CrawlDate    string  `json:"crawl_date" binding:"required"`
	Status       string  `json:"status" binding:"required"`
	ErrorMessage *string `json:"error_message"`
	NStores      int     `json:"n_stores"`
	NProducts    int     `json:"n_products"`
	NPrices      int     `json:"n_prices"`
	ElapsedTime  float64 `json:"elapsed_time"`
}

// PostCrawlerStatus upserts a crawl run by (chain_name, crawl_date).
// POST /v1/crawler/status
func PostCrawlerStatus(c *gin.Context) {
	var req crawlStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	date, err := time.Parse("2006-01-02", req.CrawlDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "crawl_date must be YYYY-MM-DD"})
		return
	}

	run, err := database.UpsertCrawlRunStatus(
		c.Request.Context(), req.ChainName, date, database.RunStatus(req.Status),
		req.ErrorMessage, req.NStores, req.NProducts, req.NPrices,
		time.Duration(req.ElapsedTime*float64(time.Second)),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert crawler status: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func parseStatusDate(c *gin.Context) (time.Time, bool) {
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

// GetCrawlerSuccessfulRuns lists SUCCESS crawl runs for a date.
// GET /v1/crawler/successful_runs/:date
func GetCrawlerSuccessfulRuns(c *gin.Context) {
	date, ok := parseStatusDate(c)
	if !ok {
		return
	}
	runs, err := database.ListCrawlRunsByDateStatus(c.Request.Context(), date, []database.RunStatus{database.RunStatusSuccess})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list successful runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetCrawlerFailedOrStartedRuns lists FAILED/STARTED crawl runs for a date —
// the retry-candidate set the orchestrator's scheduler consults.
// GET /v1/crawler/failed_or_started_runs/:date
func GetCrawlerFailedOrStartedRuns(c *gin.Context) {
	date, ok := parseStatusDate(c)
	if !ok {
		return
	}
	runs, err := database.ListCrawlRunsByDateStatus(c.Request.Context(), date,
		[]database.RunStatus{database.RunStatusFailed, database.RunStatusStarted})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed/started runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// importStatusRequest is the body for POST /v1/importer/status.
type importStatusRequest struct {
	ChainName    string  `json:"chain_name" binding:"required"`
	ImportDate   string  `json:"import_date" binding:"required"`
	Status       string  `json:"status" binding:"required"`
	ErrorMessage *string `json:"error_message"`
	NStores      int     `json:"n_stores"`
	NProducts    int     `json:"n_products"`
	NPrices      int     `json:"n_prices"`
	ElapsedTime  float64 `json:"elapsed_time"`
}

// PostImporterStatus upserts an import run by (chain_name, import_date).
// POST /v1/importer/status
func PostImporterStatus(c *gin.Context) {
	var req importStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	date, err := time.Parse("2006-01-02", req.ImportDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "import_date must be YYYY-MM-DD"})
		return
	}

	run, err := database.UpsertImportRunStatus(
		c.Request.Context(), req.ChainName, date, database.RunStatus(req.Status),
		req.ErrorMessage, req.NStores, req.NProducts, req.NPrices,
		time.Duration(req.ElapsedTime*float64(time.Second)),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert importer status: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetImporterStatus retrieves one chain's import run for a date.
// GET /v1/importer/status/:chain/:date
func GetImporterStatus(c *gin.Context) {
	date, ok := parseStatusDate(c)
	if !ok {
		return
	}
	run, err := database.GetImportRunByChainDate(c.Request.Context(), c.Param("chain"), date)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "import run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetImporterSuccessfulRuns lists SUCCESS import runs for a date.
// GET /v1/importer/successful_runs/:date
func GetImporterSuccessfulRuns(c *gin.Context) {
	date, ok := parseStatusDate(c)
	if !ok {
		return
	}
	runs, err := database.ListImportRunsByDateStatus(c.Request.Context(), date, []database.RunStatus{database.RunStatusSuccess})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list successful runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetImporterFailedOrStartedRuns lists FAILED/STARTED import runs for a date.
// GET /v1/importer/failed_or_started_runs/:date
func GetImporterFailedOrStartedRuns(c *gin.Context) {
	date, ok := parseStatusDate(c)
	if !ok {
		return
	}
	runs, err := database.ListImportRunsByDateStatus(c.Request.Context(), date,
		[]database.RunStatus{database.RunStatusFailed, database.RunStatusStarted})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed/started runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// RegisterRunStatusRoutes mounts the /v1/crawler and /v1/importer groups.
func RegisterRunStatusRoutes(r *gin.RouterGroup) {
	crawler := r.Group("/crawler")
	{
		crawler.POST("/status", PostCrawlerStatus)
		crawler.GET("/successful_runs/:date", GetCrawlerSuccessfulRuns)
		crawler.GET("/failed_or_started_runs/:date", GetCrawlerFailedOrStartedRuns)
	}

	importer := r.Group("/importer")
	{
		importer.POST("/status", PostImporterStatus)
		importer.GET("/status/:chain/:date", GetImporterStatus)
		importer.GET("/successful_runs/:date", GetImporterSuccessfulRuns)
		importer.GET("/failed_or_started_runs/:date", GetImporterFailedOrStartedRuns)
	}
}
