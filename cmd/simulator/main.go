// Command simulator seeds the analytics streams with sample data so a
// locally running engine has something to evaluate: web-vitals samples,
// product events, a burst of errors and a few completed sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/praxlaw/crm-alert-engine/pkg/analytics"
	"github.com/praxlaw/crm-alert-engine/pkg/config"
)

func main() {
	address := flag.String("address", "localhost:8464", "analytics store address")
	workspace := flag.String("workspace", "default", "analytics workspace")
	username := flag.String("username", "default", "analytics username")
	password := flag.String("password", "", "analytics password")
	sessions := flag.Int("sessions", 20, "number of sessions to simulate")
	errorBurst := flag.Bool("error-burst", false, "inject an error burst that trips the error-rate rule")
	slowPaint := flag.Bool("slow-paint", false, "inject LCP samples above the 4000ms threshold")
	flag.Parse()

	cfg := &config.AnalyticsConfig{
		Address:   *address,
		Workspace: *workspace,
		Username:  *username,
		Password:  *password,
	}

	client, err := analytics.NewClient(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := analytics.SetupStreams(ctx, client); err != nil {
		logrus.Fatalf("Failed to set up streams: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	pages := []string{"/matters", "/documents", "/academy", "/recruitment", "/analytics"}

	for i := 0; i < *sessions; i++ {
		sessionID := uuid.New().String()
		page := pages[rng.Intn(len(pages))]

		lcp := 1500 + rng.Float64()*2000
		if *slowPaint {
			lcp = 4200 + rng.Float64()*1500
		}
		insertPerfSample(ctx, client, sessionID, "largest_contentful_paint", lcp, page)
		insertPerfSample(ctx, client, sessionID, "first_input_delay", 20+rng.Float64()*150, page)
		insertPerfSample(ctx, client, sessionID, "cumulative_layout_shift", rng.Float64()*0.2, page)

		events := 3 + rng.Intn(8)
		for j := 0; j < events; j++ {
			insert(ctx, client, analytics.EventStream,
				[]string{"session_id", "event_type", "page"},
				[]interface{}{sessionID, "page_view", page})
		}

		if *errorBurst && rng.Float64() < 0.5 {
			insert(ctx, client, analytics.ErrorStream,
				[]string{"session_id", "message", "source"},
				[]interface{}{sessionID, "TypeError: cannot read properties of undefined", page})
		}

		started := time.Now().Add(-time.Duration(rng.Intn(50)+5) * time.Minute)
		ended := started.Add(time.Duration(rng.Intn(20)+1) * time.Minute)
		insert(ctx, client, analytics.SessionStream,
			[]string{"session_id", "user_id", "started_at", "ended_at"},
			[]interface{}{sessionID, fmt.Sprintf("user-%d", rng.Intn(50)), started, ended})
	}

	logrus.Infof("Seeded %d sessions (errorBurst=%t slowPaint=%t)", *sessions, *errorBurst, *slowPaint)
}

func insertPerfSample(ctx context.Context, client analytics.Client, sessionID, metric string, value float64, page string) {
	insert(ctx, client, analytics.PerfSampleStream,
		[]string{"session_id", "metric", "value", "page"},
		[]interface{}{sessionID, metric, value, page})
}

func insert(ctx context.Context, client analytics.Client, stream string, columns []string, values []interface{}) {
	if err := client.InsertIntoStream(ctx, stream, columns, values); err != nil {
		logrus.Warnf("Failed to insert into %s: %v", stream, err)
	}
}
