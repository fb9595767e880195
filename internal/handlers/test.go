package handlers

import (
	"fmt"
	"net/http"
)

// Test is the liveness probe.
func Test(w http.ResponseWriter, r *http.Request) {
	_, err := fmt.Fprint(w, "Hello world!")
	if err != nil {
		sugar.Error(err)
		return
	}
}
