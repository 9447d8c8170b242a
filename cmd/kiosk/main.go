package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"classpass/internal/config"
	"classpass/internal/geo"
)

// Kiosk is a shared check-in terminal: it acquires a position fix from a
// local positioning endpoint and submits one check-in to the API.
func main() {
	var (
		code    = flag.String("code", "", "session code shown by the teacher")
		name    = flag.String("name", "", "student full name")
		student = flag.String("id", "", "student id")
		email   = flag.String("email", "", "student email (optional)")
		noLoc   = flag.Bool("no-location", false, "submit without a position fix")
	)
	flag.Parse()

	if *code == "" || *name == "" || *student == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	var loc *geo.Location
	if !*noLoc {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		fix, err := geo.Acquire(ctx, geo.NewHTTPProvider(cfg.PositionURL))
		cancel()
		if err != nil {
			// Classified location errors carry user-facing text; the
			// check-in still goes through, just unverified.
			fmt.Fprintf(os.Stderr, "location: %v\n", err)
		} else {
			loc = &fix
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"student_name":  *name,
		"student_id":    *student,
		"student_email": *email,
		"location":      loc,
	})

	url := cfg.APIBaseURL + "/v1/attend/" + *code
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("check-in request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Error     string     `json:"error"`
		Status    geo.Status `json:"status"`
		Distance  string     `json:"distance"`
		ClassName string     `json:"class_name"`
		Session   string     `json:"session_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Fatalf("unexpected response (%s): %v", resp.Status, err)
	}

	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "check-in rejected (%s): %s\n", resp.Status, body.Error)
		os.Exit(1)
	}

	fmt.Printf("checked in to %s / %s\n", body.ClassName, body.Session)
	if body.Status != "" {
		fmt.Printf("geofence: %s", body.Status)
		if body.Distance != "" {
			fmt.Printf(" (%s from class)", body.Distance)
		}
		fmt.Println()
	}
}
