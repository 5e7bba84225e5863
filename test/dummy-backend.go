package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// A stand-in translation backend for local runs. The gateway treats the
// backend as an opaque collaborator; this one fakes translations by
// tagging the text with the target language.

type translateRequest struct {
	Text     string `json:"text"`
	FromLang string `json:"from_lang"`
	ToLang   string `json:"to_lang"`
}

func main() {
	http.HandleFunc("/api/translate", func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
			return
		}

		log.Printf("translate %s -> %s: %q", req.FromLang, req.ToLang, req.Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"original":   req.Text,
			"translated": fmt.Sprintf("[%s] %s", strings.ToUpper(req.ToLang), req.Text),
			"from_lang":  req.FromLang,
			"to_lang":    req.ToLang,
			"timestamp":  time.Now().Format(time.RFC3339),
		})
	})

	http.HandleFunc("/api/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"languages": [
			{"code": "en", "name": "English"},
			{"code": "es", "name": "Spanish"},
			{"code": "fr", "name": "French"},
			{"code": "de", "name": "German"},
			{"code": "ja", "name": "Japanese"}
		]}`)
	})

	log.Println("Dummy translation backend starting on :3001")
	if err := http.ListenAndServe(":3001", nil); err != nil {
		log.Fatal(err)
	}
}
