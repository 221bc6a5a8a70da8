package middleware

import (
	"net/http"
	"strconv"
)

// ConfirmHeader carries an explicit confirmation of a destructive request.
const ConfirmHeader = "X-Confirm"

// RequireConfirm rejects destructive requests that were not explicitly
// confirmed with 428 Precondition Required. A request is confirmed by
// ?confirm=true or an X-Confirm: true header.
func RequireConfirm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !confirmed(r) {
			http.Error(w, "confirmation required: repeat with confirm=true", http.StatusPreconditionRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func confirmed(r *http.Request) bool {
	for _, v := range []string{r.URL.Query().Get("confirm"), r.Header.Get(ConfirmHeader)} {
		if ok, err := strconv.ParseBool(v); err == nil && ok {
			return true
		}
	}
	return false
}
