package dashboard

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/TravisBrace/formspree/internal/middleware"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/hashid"
	"github.com/TravisBrace/formspree/internal/pkg/response"
)

// GET /forms/:hashid/export?format=json|csv downloads the full archive.
// Archives only exist on the upgraded plan, so the export gate rides on
// the same capability.
func (h *Handler) export(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}

	upgraded, err := h.svc.planUpgraded(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !upgraded {
		response.PaymentRequired(c, "submission exports are available on the upgraded plan")
		return
	}

	var subs []models.SubmissionModel
	if err := h.svc.db.Where("form_id = ?", form.ID).Order("id ASC").Find(&subs).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	keys := distinctFieldKeys(subs)

	format := c.DefaultQuery("format", "json")
	stamp := time.Now().UTC().Format(time.RFC3339)
	filename := fmt.Sprintf("form-%s-submissions-%s.%s", hashid.Encode(form.ID), stamp, format)

	switch format {
	case "json":
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.JSON(http.StatusOK, exportDocument(form, keys, subs))
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", exportCSV(keys, subs))
	default:
		response.BadRequest(c, "format must be json or csv")
	}
}

// distinctFieldKeys collects every field name that ever appeared in the
// archive, sorted so exports are stable run to run.
func distinctFieldKeys(subs []models.SubmissionModel) []string {
	seen := map[string]bool{}
	for _, sub := range subs {
		for _, key := range sub.Fields.Keys() {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func exportDocument(form *models.FormModel, keys []string, subs []models.SubmissionModel) gin.H {
	items := make([]gin.H, 0, len(subs))
	for _, sub := range subs {
		items = append(items, gin.H{
			"id":     sub.ID,
			"date":   sub.SubmittedAt,
			"fields": sub.Fields,
		})
	}
	return gin.H{
		"host":        form.Host,
		"email":       form.Email,
		"fields":      keys,
		"submissions": items,
	}
}

func exportCSV(keys []string, subs []models.SubmissionModel) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"id"}, keys...)
	w.Write(header)

	row := make([]string, len(header))
	for _, sub := range subs {
		row[0] = fmt.Sprintf("%d", sub.ID)
		for i, key := range keys {
			row[i+1] = sub.Fields.Get(key)
		}
		w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}
