// Package appsscript triggers a Google Apps Script web app after a sheet
// changes, so that derived data can be rebuilt.
package appsscript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/sirupsen/logrus"
)

// DefaultAction is sent for sheets without an entry in the action table.
const DefaultAction = "runAllUpdates"

// ErrMissingURL is returned when no web app URL is configured
var ErrMissingURL = errors.New("apps script url is required")

// DefaultActions maps normalised sheet names to the script action that
// refreshes them. An empty action means the sheet has no job to run.
func DefaultActions() map[string]string {
	return map[string]string{
		"users":                  "updateUsers",
		"newstock-tickets":       "updateTickets",
		"testhotels":             "updateHotels",
		"teststock-rooms":        "updateRooms",
		"event":                  "updateEvents",
		"packages":               "updatePackages",
		"n-categories":           "updateCategories",
		"package-tiers":          "updatePackageTiers",
		"stock-circuittransfers": "",
		"stock-flights":          "updateFlights",
		"stock-airporttransfers": "",
		"stock-loungepasses":     "updateLoungePasses",
		"venues":                 "updateVenues",
		"itineraries":            "updateItineraries",
		"fx-spread":              "",
	}
}

// Config holds the web app endpoint and the action table
type Config struct {
	URL           string
	Actions       map[string]string // nil uses DefaultActions
	DefaultAction string            // empty uses DefaultAction
	Timeout       time.Duration     // default: 10s
}

// Notifier implements sheetstore.Notifier
type Notifier struct {
	url           string
	actions       map[string]string
	defaultAction string
	client        *http.Client
	log           logrus.FieldLogger
}

// New creates a notifier. A nil client uses a client with the configured timeout.
func New(config Config, client *http.Client, logger logrus.FieldLogger) (*Notifier, error) {
	if config.URL == "" {
		return nil, ErrMissingURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	actions := config.Actions
	if actions == nil {
		actions = DefaultActions()
	}
	normalized := make(map[string]string, len(actions))
	for sheet, action := range actions {
		normalized[NormalizeSheet(sheet)] = action
	}

	defaultAction := config.DefaultAction
	if defaultAction == "" {
		defaultAction = DefaultAction
	}

	return &Notifier{
		url:           config.URL,
		actions:       normalized,
		defaultAction: defaultAction,
		client:        client,
		log:           logger,
	}, nil
}

// NormalizeSheet lower-cases a sheet name and strips all whitespace.
func NormalizeSheet(sheet string) string {
	return strings.ToLower(strings.Join(strings.Fields(sheet), ""))
}

// Action returns the script action for a sheet and whether one should run.
func (n *Notifier) Action(sheet string) (string, bool) {
	action, ok := n.actions[NormalizeSheet(sheet)]
	if !ok {
		return n.defaultAction, true
	}
	return action, action != ""
}

// Notify implements sheetstore.Notifier
func (n *Notifier) Notify(ctx context.Context, change sheetstore.Change) error {
	action, ok := n.Action(change.Sheet)
	if !ok {
		n.log.WithField("sheet", change.Sheet).Debug("no update action for sheet")
		return nil
	}

	body, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call apps script: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("apps script returned %s for action %s: %s", resp.Status, action, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	n.log.WithFields(logrus.Fields{"sheet": change.Sheet, "action": action}).Info("triggered external update")
	return nil
}
