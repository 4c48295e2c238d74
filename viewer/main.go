package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/brensch/unrolled/store"
)

func main() {
	dbPath := flag.String("db", "sessions.db", "Path to the session store")
	addr := flag.String("addr", ":8089", "HTTP listen address")
	poll := flag.Duration("poll", 2*time.Second, "Session store poll interval for the live feed")
	flag.Parse()

	db, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer db.Close()

	hub := NewHub()
	server := NewServer(db, hub)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	go tailRollouts(db, hub, *poll)

	log.Printf("Session viewer listening on %s (store: %s)", *addr, *dbPath)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// tailRollouts polls the store and publishes rollouts it has not seen yet.
func tailRollouts(db *store.DB, hub *Hub, interval time.Duration) {
	seen := make(map[string]int)
	for {
		time.Sleep(interval)
		if hub.Subscribers() == 0 {
			continue
		}

		sessions, err := db.ListSessions(50)
		if err != nil {
			log.Printf("Poll sessions: %v", err)
			continue
		}
		for _, s := range sessions {
			if s.Rollouts <= seen[s.ID] {
				continue
			}
			rollouts, err := db.SessionRollouts(s.ID)
			if err != nil {
				log.Printf("Poll rollouts for %s: %v", s.ID, err)
				continue
			}
			for _, r := range rollouts[seen[s.ID]:] {
				hub.Publish(Update{
					SessionID: r.SessionID,
					Seq:       r.Seq,
					Decisions: r.Decisions,
					Score:     r.Score,
					OK:        r.OK,
				})
			}
			seen[s.ID] = len(rollouts)
		}
	}
}
