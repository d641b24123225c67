package swagger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentListsRoutes(t *testing.T) {
	var doc struct {
		Paths       map[string]map[string]json.RawMessage `json:"paths"`
		Definitions map[string]json.RawMessage            `json:"definitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &doc))

	routes := map[string]string{
		"/api/quotes":                      "post",
		"/api/quotes/{id}/convert":         "post",
		"/api/work-orders/{id}/status":     "put",
		"/api/invoices/{id}/pdf":           "get",
		"/api/commissions/export":          "get",
		"/api/inbox/read-all":              "post",
		"/api/services":                    "put",
		"/api/audit-logs":                  "get",
		"/api/work-orders/{id}/commission": "get",
	}
	for path, method := range routes {
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, path) {
			assert.Contains(t, ops, method, path)
		}
	}

	for _, name := range []string{"response.Response", "service.QuoteResponse", "service.InvoiceResponse", "realtime.UnreadCounts"} {
		assert.Contains(t, doc.Definitions, name)
	}
}
