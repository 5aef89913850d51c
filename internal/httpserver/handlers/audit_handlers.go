package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/models"
)

// AuditLogs returns recent audit entries, optionally narrowed to one client
// (?client_id=) or one action (?action=).
func AuditLogs(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Order("created_at desc").Limit(200)
		if cid := r.URL.Query().Get("client_id"); cid != "" {
			q = q.Where("client_id = ?", cid)
		}
		if action := r.URL.Query().Get("action"); action != "" {
			q = q.Where("action = ?", action)
		}
		var logs []models.AuditLog
		if err := q.Find(&logs).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, logs)
	}
}
