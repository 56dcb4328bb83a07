package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/example/resy-sniper/internal/sniper"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const clientBuffer = 64

// Feed fans a run's progress events out to websocket watchers. Watchers
// that join late first receive every event published so far.
type Feed struct {
	mu      sync.Mutex
	history []sniper.Event
	clients map[chan sniper.Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{clients: make(map[chan sniper.Event]struct{})}
}

// Publish never blocks. A watcher too slow to keep up is disconnected.
func (f *Feed) Publish(ev sniper.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, ev)
	for c := range f.clients {
		select {
		case c <- ev:
		default:
			log.Printf("web: dropping slow watcher")
			delete(f.clients, c)
			close(c)
		}
	}
}

// subscribe returns the replay and a channel for every later event.
func (f *Feed) subscribe() ([]sniper.Event, chan sniper.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	replay := append([]sniper.Event(nil), f.history...)
	c := make(chan sniper.Event, clientBuffer)
	f.clients[c] = struct{}{}
	return replay, c
}

func (f *Feed) unsubscribe(c chan sniper.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c)
	}
}

func (f *Feed) last() (sniper.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return sniper.Event{}, false
	}
	return f.history[len(f.history)-1], true
}

func (f *Feed) Routes() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	router.GET("/status", f.handleStatus)
	router.GET("/events", f.handleEvents)
	return router
}

func (f *Feed) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ev, ok := f.last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ev)
}

func (f *Feed) handleEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("web: websocket upgrade failed:", err)
		return
	}
	defer conn.Close()

	replay, c := f.subscribe()
	defer f.unsubscribe(c)

	// the read side only notices the watcher going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev sniper.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			return false
		}
		if ev.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Kind)), time.Now().Add(time.Second))
			return false
		}
		return true
	}
	for _, ev := range replay {
		if !send(ev) {
			return
		}
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-c:
			if !ok || !send(ev) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Start serves h on addr until ctx is done.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("web: watching on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
