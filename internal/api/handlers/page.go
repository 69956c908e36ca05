package handlers

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/irfndi/stockdash/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DashboardTemplate is the name of the page template.
const DashboardTemplate = "dashboard.html"

//go:embed templates/*.html
var templateFS embed.FS

var (
	periodCodes   = []string{"1D", "1W", "1M", "1Y", "5Y", "YTD", "MAX"}
	intervalCodes = []string{"1D", "1W", "1M"}
	chartTypes    = []models.ChartType{models.ChartLine, models.ChartCandle}
)

type option struct {
	Code  string
	Label string
}

func options(codes []string) []option {
	out := make([]option, len(codes))
	for i, code := range codes {
		out[i] = option{Code: code, Label: marketdata.LabelDesc[code]}
	}
	return out
}

type pageData struct {
	Request    models.DashboardRequest
	Periods    []option
	Intervals  []option
	ChartTypes []models.ChartType
	MaxHorizon int
	Dashboard  *models.Dashboard
	Error      string
}

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		// a Caser is stateful, so one per call
		"title": func(s string) string {
			return cases.Title(language.English).String(s)
		},
		"json": func(v interface{}) (template.JS, error) {
			b, err := json.Marshal(v)
			return template.JS(b), err
		},
	}).ParseFS(templateFS, "templates/*.html")
}

// Page renders the dashboard. GET reads the form from the query string, POST
// from the form body. Without a ticker only the form is shown.
func (h *DashboardHandler) Page(c *gin.Context) {
	req := h.service.Defaults()
	data := pageData{
		Periods:    options(periodCodes),
		Intervals:  options(intervalCodes),
		ChartTypes: chartTypes,
		MaxHorizon: h.maxHorizon,
	}

	if err := c.ShouldBind(&req); err != nil {
		data.Request = req
		data.Error = "Invalid form: " + err.Error()
		c.HTML(http.StatusBadRequest, DashboardTemplate, data)
		return
	}
	data.Request = req

	if req.Ticker == "" {
		c.HTML(http.StatusOK, DashboardTemplate, data)
		return
	}

	dashboard, err := h.service.Build(c.Request.Context(), req)
	if err != nil {
		status := StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).WithField("ticker", req.Ticker).Error("Dashboard page failed")
		}
		data.Error = errorMessage(err, status)
		c.HTML(status, DashboardTemplate, data)
		return
	}

	data.Dashboard = dashboard
	c.HTML(http.StatusOK, DashboardTemplate, data)
}
