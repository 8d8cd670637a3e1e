package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/d9705996/artisan/internal/integration/pdf"
)

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type sendRequest struct {
	To      string `json:"to" validate:"omitempty,email"`
	Message string `json:"message" validate:"max=2000"`
}

// writePDF streams a rendered document. ?download=1 asks the browser to
// save it instead of displaying it.
func writePDF(w http.ResponseWriter, r *http.Request, doc *pdf.Document, data []byte) {
	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", pdf.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.FileName()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
