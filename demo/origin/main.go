// Command origin is a stand-in for the static site host. Point
// origin.url at it to exercise pass-through locally.
package main

import (
	"errors"
	"flag"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

func main() {
	listen := flag.String("listen", ":8081", "listen address")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(logrus.Fields{"host": r.Host, "path": r.URL.Path, "query": r.URL.RawQuery}).Info("origin hit")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<html><body><h1>%s</h1><p>%s</p></body></html>\n", html.EscapeString(r.Host), html.EscapeString(r.URL.Path))
	})
	mux.HandleFunc("/posts/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("post: " + r.URL.Path[len("/posts/"):]))
	})

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.WithField("listen", *listen).Info("demo origin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
