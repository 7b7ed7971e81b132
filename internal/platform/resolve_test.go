package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestResolver_Resolve(t *testing.T) {
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	target := final.URL + "/watch?v=7UxNoFjmhBA"
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer short.Close()

	shortURL, err := url.Parse(short.URL)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(5*time.Second, []string{shortURL.Host})

	t.Run("should_follow_redirect_of_short_host", func(t *testing.T) {
		got, err := r.Resolve(context.Background(), short.URL+"/abc")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != target {
			t.Errorf("Resolve() = %q, want %q", got, target)
		}
	})

	t.Run("should_return_same_url_for_regular_host", func(t *testing.T) {
		link := "https://www.youtube.com/watch?v=7UxNoFjmhBA"
		got, err := r.Resolve(context.Background(), link)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != link {
			t.Errorf("Resolve() = %q, want %q", got, link)
		}
	})

	t.Run("should_stop_on_redirect_loop", func(t *testing.T) {
		var loop *httptest.Server
		loop = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, loop.URL+"/again", http.StatusFound)
		}))
		defer loop.Close()
		loopURL, _ := url.Parse(loop.URL)
		lr := NewResolver(5*time.Second, []string{loopURL.Host})
		if _, err := lr.Resolve(context.Background(), loop.URL); err == nil {
			t.Error("Resolve() expected error on redirect loop")
		}
	})
}
